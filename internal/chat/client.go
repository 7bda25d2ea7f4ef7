package chat

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 512                 // Maximum message size allowed from peer.
)

// WSMessage is the JSON a connected frontend sends: just the text. The sender
// identity comes from the authenticated session, never from the payload.
type WSMessage struct {
	Text string `json:"text"`
}

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	// ID distinguishes this connection across the broker, so a broadcast can
	// skip the publisher even when it came back through Redis.
	ID       uuid.UUID
	Username string

	hub  *Hub
	conn *websocket.Conn
	log  *slog.Logger

	// Buffered channel of outbound event payloads.
	send chan []byte
	// done is closed exactly once when the hub drops the client; goroutines
	// still pushing to send bail out instead of blocking or panicking.
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn, username string, log *slog.Logger) *Client {
	return &Client{
		ID:       uuid.New(),
		Username: username,
		hub:      hub,
		conn:     conn,
		log:      log,
		send:     make(chan []byte, 256),
		done:     make(chan struct{}),
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// detach hands the client back to the hub, unless the hub already shut the
// client down (or stopped running), in which case there is nobody to tell.
func (c *Client) detach() {
	select {
	case c.hub.unregister <- c:
	case <-c.done:
	}
}

// trySend queues a payload without blocking. False means the client is gone
// or too slow to keep up.
func (c *Client) trySend(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// sendWait queues a payload, waiting for buffer space. Used by replay, which
// must not drop messages but must stop once the client disconnects.
func (c *Client) sendWait(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	case <-c.done:
		return false
	}
}

// readPump pumps messages from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		// Cleanup: if the connection dies, tell the hub to unregister.
		c.detach()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	// Heartbeat logic (keep-alive).
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Error("websocket read failed", "user", c.Username, "err", err)
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Warn("dropping malformed chat payload", "user", c.Username, "err", err)
			continue
		}
		// PIPELINE: browser -> readPump -> hub.publish
		select {
		case c.hub.publish <- &IncomingMessage{ConnID: c.ID, Username: c.Username, Text: msg.Text}:
		case <-c.done:
			return
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(payload)

			// If there are queued messages, write them all in one frame.
			// This reduces syscalls under load.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
