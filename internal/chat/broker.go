package chat

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Topic is the single broadcast channel. Only one room exists today, but the
// broker addresses it by name so more rooms would not need a redesign.
const Topic = "global-chat"

// Broker moves chat events between server instances. Events published from a
// single goroutine arrive at every subscriber in publish order.
type Broker interface {
	Publish(ctx context.Context, evt Event) error
	Subscribe(ctx context.Context) (<-chan Event, error)
}

// RedisBroker fans events through a Redis pub/sub topic so every instance of
// the server sees every message, one JSON payload per event.
type RedisBroker struct {
	client *redis.Client
	log    *slog.Logger
}

func NewRedisBroker(client *redis.Client, log *slog.Logger) *RedisBroker {
	return &RedisBroker{client: client, log: log}
}

func (b *RedisBroker) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, Topic, payload).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context) (<-chan Event, error) {
	pubsub := b.client.Subscribe(ctx, Topic)
	// Confirm the subscription before anyone publishes.
	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, err
	}

	events := make(chan Event)
	go func() {
		defer close(events)
		defer pubsub.Close()
		for msg := range pubsub.Channel() {
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				b.log.Error("dropping malformed broker payload", "err", err)
				continue
			}
			select {
			case events <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

// LoopbackBroker is an in-process Broker for single-node deployments that run
// without Redis (leave REDIS_ADDR unset), and for tests. Publishers and the
// subscriber are decoupled by an internal pump, so the hub can publish from
// the same goroutine that drains the subscription without ever deadlocking
// itself.
type LoopbackBroker struct {
	in  chan Event
	out chan Event
}

func NewLoopbackBroker() *LoopbackBroker {
	b := &LoopbackBroker{
		in:  make(chan Event, 64),
		out: make(chan Event, 64),
	}
	go b.pump()
	return b
}

// pump moves events from publishers to the subscriber through an unbounded
// FIFO queue. The in channel is always being drained, so Publish never blocks
// for longer than a queue append.
func (b *LoopbackBroker) pump() {
	var queue []Event
	for {
		var out chan Event
		var next Event
		if len(queue) > 0 {
			out = b.out
			next = queue[0]
		}
		select {
		case evt := <-b.in:
			queue = append(queue, evt)
		case out <- next:
			queue = queue[1:]
		}
	}
}

func (b *LoopbackBroker) Publish(ctx context.Context, evt Event) error {
	select {
	case b.in <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *LoopbackBroker) Subscribe(ctx context.Context) (<-chan Event, error) {
	return b.out, nil
}
