package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
)

// Hub is the central router for the global channel. It owns the set of
// connected clients, and its run loop is the only goroutine that touches that
// set, so membership needs no lock. Delivery order per publisher is the order
// publishes reach the loop; nothing is promised across racing publishers.
type Hub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	publish    chan *IncomingMessage
	// persist feeds the single persister goroutine. One writer keeps serial
	// ids in hub-loop order, so replay reads messages back in the order live
	// clients saw them.
	persist chan *IncomingMessage

	broker   Broker
	store    MessageStore
	presence *PresenceTracker
	log      *slog.Logger
}

func NewHub(broker Broker, store MessageStore, presence *PresenceTracker, log *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		publish:    make(chan *IncomingMessage),
		persist:    make(chan *IncomingMessage, 256),
		broker:     broker,
		store:      store,
		presence:   presence,
		log:        log,
	}
}

// Run loops until ctx is cancelled. Call it in its own goroutine.
func (h *Hub) Run(ctx context.Context) {
	events, err := h.broker.Subscribe(ctx)
	if err != nil {
		h.log.Error("broker subscribe failed", "err", err)
		return
	}
	go h.persister(ctx)

	// However the loop ends, release every client so their pumps and any
	// in-flight replay stop instead of blocking on a dead hub.
	defer func() {
		for client := range h.clients {
			client.close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.clients[client] = true
			h.presence.MarkOnline(client.Username)

		case client := <-h.unregister:
			h.drop(client)

		case msg := <-h.publish:
			h.handlePublish(ctx, msg)

		case evt, ok := <-events:
			if !ok {
				h.log.Error("broker subscription closed")
				return
			}
			h.fanOut(evt)
		}
	}
}

// persister drains the persistence queue one append at a time. Serializing
// the writes here keeps stored order equal to publish order without letting a
// slow store stall the hub loop.
func (h *Hub) persister(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-h.persist:
			if _, err := h.store.Append(context.Background(), msg.Username, msg.Text); err != nil {
				h.log.Error("message not persisted", "user", msg.Username, "err", err)
			}
		}
	}
}

func (h *Hub) drop(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	client.close()

	// The identity stays online while another of its connections is open.
	for c := range h.clients {
		if c.Username == client.Username {
			return
		}
	}
	h.presence.MarkOffline(client.Username)
}

func (h *Hub) handlePublish(ctx context.Context, msg *IncomingMessage) {
	if strings.TrimSpace(msg.Text) == "" {
		// Best-effort semantics: the sender sees no error.
		h.log.Debug("dropping publish", "user", msg.Username, "reason", ErrEmptyMessage)
		return
	}

	evt := Event{
		Type:     EventChat,
		ConnID:   msg.ConnID,
		Username: msg.Username,
		Text:     msg.Text,
	}

	// Deliver first. Persistence is queued for the persister goroutine so a
	// slow or dead store never stalls connected clients, and a failed write
	// never retracts a broadcast that already went out.
	if err := h.broker.Publish(ctx, evt); err != nil {
		h.log.Error("broadcast publish failed", "user", msg.Username, "err", err)
	}
	select {
	case h.persist <- msg:
	default:
		// Durability is best effort relative to delivery; a saturated queue
		// loses the write, not the broadcast.
		h.log.Error("persistence queue full, message not persisted", "user", msg.Username)
	}
}

func (h *Hub) fanOut(evt Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		h.log.Error("marshal event failed", "err", err)
		return
	}
	for client := range h.clients {
		if client.ID == evt.ConnID {
			// Never echo a message back to its publisher.
			continue
		}
		if !client.trySend(payload) {
			h.drop(client)
		}
	}
}
