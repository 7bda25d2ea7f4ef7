package chat

import (
	"context"
	"encoding/json"
	"log/slog"
)

// RecoveryService replays missed history to a client whose transport-level
// connection state could not be restored.
type RecoveryService struct {
	store MessageStore
	log   *slog.Logger
}

func NewRecoveryService(store MessageStore, log *slog.Logger) *RecoveryService {
	return &RecoveryService{store: store, log: log}
}

// Resume catches a freshly attached client up on stored history. recovered is
// the transport's own verdict, passed through untouched: when true, the
// transport already flushed its buffer and there is nothing to do. Replay goes
// to this one client only, never through the broker.
func (r *RecoveryService) Resume(ctx context.Context, client *Client, recovered bool) {
	if recovered {
		return
	}

	messages, err := r.store.ListSince(ctx, 0)
	if err != nil {
		// Degraded but connected: the client just starts without history.
		r.log.Error("history replay unavailable", "user", client.Username, "err", err)
		return
	}

	for _, msg := range messages {
		evt := Event{
			Type:      EventReplay,
			Username:  msg.Username,
			Text:      msg.Text,
			MessageID: msg.ID,
		}
		payload, err := json.Marshal(evt)
		if err != nil {
			r.log.Error("marshal replay event failed", "err", err)
			return
		}
		if !client.sendWait(payload) {
			// Client went away mid-replay; stop quietly.
			return
		}
	}
}
