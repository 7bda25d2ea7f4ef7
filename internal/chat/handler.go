package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	myMiddleware "friend-chat/internal/middleware"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for now (dev mode)
	},
}

// UserDirectory resolves display names for identities. Implemented by the
// user feature; the interface keeps the packages loosely coupled.
type UserDirectory interface {
	Fullnames(ctx context.Context, usernames []string) (map[string]string, error)
}

// OnlineUser is one row of the presence listing.
type OnlineUser struct {
	Username string `json:"username"`
	Fullname string `json:"fullname,omitempty"`
}

type Handler struct {
	hub       *Hub
	recovery  *RecoveryService
	store     MessageStore
	presence  *PresenceTracker
	directory UserDirectory
	log       *slog.Logger
}

func NewHandler(hub *Hub, recovery *RecoveryService, store MessageStore, presence *PresenceTracker, directory UserDirectory, log *slog.Logger) *Handler {
	return &Handler{
		hub:       hub,
		recovery:  recovery,
		store:     store,
		presence:  presence,
		directory: directory,
		log:       log,
	}
}

// ServeWs upgrades an authenticated request to a websocket and attaches it to
// the global channel. The transport reports whether it restored the client's
// prior state through the "recovered" query parameter; when it did not, stored
// history is replayed to this connection.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	username, ok := r.Context().Value(myMiddleware.UsernameKey).(string)
	if !ok || username == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	recovered, _ := strconv.ParseBool(r.URL.Query().Get("recovered"))

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", "err", err)
		return
	}

	client := newClient(h.hub, conn, username, h.log)
	h.hub.register <- client

	go client.writePump()
	go client.readPump()
	// The request context dies when this handler returns; replay has to
	// outlive it.
	go h.recovery.Resume(context.Background(), client, recovered)
}

// GetChatHistory returns stored messages, oldest first. An optional "since"
// id restricts the range for clients that track their own cursor.
func (h *Handler) GetChatHistory(w http.ResponseWriter, r *http.Request) {
	sinceID, _ := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)

	messages, err := h.store.ListSince(r.Context(), sinceID)
	if err != nil {
		h.log.Error("history query failed", "err", err)
		http.Error(w, "failed to load messages", http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []*Message{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(messages)
}

// GetPresence returns who is in the global room right now. Display names come
// from the user directory; if that lookup fails the response degrades to bare
// usernames rather than erroring.
func (h *Handler) GetPresence(w http.ResponseWriter, r *http.Request) {
	online := h.presence.Online()

	names, err := h.directory.Fullnames(r.Context(), online)
	if err != nil {
		h.log.Error("presence name lookup failed", "err", err)
		names = map[string]string{}
	}

	users := make([]OnlineUser, 0, len(online))
	for _, u := range online {
		users = append(users, OnlineUser{Username: u, Fullname: names[u]})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"online": len(users),
		"users":  users,
	})
}
