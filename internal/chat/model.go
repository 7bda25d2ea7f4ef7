package chat

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrEmptyMessage marks a publish with no text. The hub drops these silently;
// the sentinel exists so other layers can classify the failure if they care.
var ErrEmptyMessage = errors.New("empty message text")

// Message is one durably stored chat message. Messages are immutable once
// stored; the serial id doubles as the replay ordering key.
type Message struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Event types on the wire.
const (
	// EventChat is a live broadcast to everyone but the sender.
	EventChat = "chat"
	// EventReplay is point-to-point catch-up for a reconnecting client.
	EventReplay = "replay"
)

// Event is what connected clients receive, and the payload carried across the
// broker between server instances.
type Event struct {
	Type     string    `json:"type"`
	ConnID   uuid.UUID `json:"conn_id"`
	Username string    `json:"username"`
	Text     string    `json:"text"`
	// MessageID is set on replay events only, so clients can dedup against
	// anything the transport already delivered.
	MessageID int64 `json:"message_id,omitempty"`
}

// IncomingMessage is a publish request from one connection, as it travels
// from the read pump into the hub.
type IncomingMessage struct {
	ConnID   uuid.UUID
	Username string
	Text     string
}
