package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStore is an in-memory MessageStore with a failure switch.
type fakeStore struct {
	mu       sync.Mutex
	messages []*Message
	nextID   int64
	failing  bool
	appends  int
	lists    int
}

func (s *fakeStore) Append(_ context.Context, username, text string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appends++
	if s.failing {
		return nil, errors.New("store unreachable")
	}
	s.nextID++
	msg := &Message{ID: s.nextID, Username: username, Text: text, CreatedAt: time.Now()}
	s.messages = append(s.messages, msg)
	return msg, nil
}

func (s *fakeStore) ListSince(_ context.Context, sinceID int64) ([]*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists++
	if s.failing {
		return nil, errors.New("store unreachable")
	}
	var out []*Message
	for _, m := range s.messages {
		if m.ID > sinceID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeStore) appendCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appends
}

func (s *fakeStore) seed(username, text string) *Message {
	msg, _ := s.Append(context.Background(), username, text)
	return msg
}

func newTestClient(username string, buffer int) *Client {
	return &Client{
		ID:       uuid.New(),
		Username: username,
		send:     make(chan []byte, buffer),
		done:     make(chan struct{}),
	}
}

func startHub(t *testing.T, store MessageStore) (*Hub, *PresenceTracker) {
	t.Helper()
	presence := NewPresenceTracker()
	hub := NewHub(NewLoopbackBroker(), store, presence, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub, presence
}

func receiveEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case payload := <-c.send:
		var evt Event
		require.NoError(t, json.Unmarshal(payload, &evt))
		return evt
	case <-time.After(time.Second):
		t.Fatalf("no event delivered to %s within 1s", c.Username)
		return Event{}
	}
}

func requireNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case payload := <-c.send:
		t.Fatalf("unexpected event delivered to %s: %s", c.Username, payload)
	default:
	}
}

func TestHubBroadcastSkipsSender(t *testing.T) {
	store := &fakeStore{}
	hub, _ := startHub(t, store)

	alice := newTestClient("alice", 16)
	bob := newTestClient("bob", 16)
	hub.register <- alice
	hub.register <- bob

	hub.publish <- &IncomingMessage{ConnID: alice.ID, Username: "alice", Text: "hello"}

	evt := receiveEvent(t, bob)
	require.Equal(t, EventChat, evt.Type)
	require.Equal(t, "alice", evt.Username)
	require.Equal(t, "hello", evt.Text)
	require.Equal(t, alice.ID, evt.ConnID)

	requireNoEvent(t, alice)
}

func TestHubFIFOPerPublisher(t *testing.T) {
	store := &fakeStore{}
	hub, _ := startHub(t, store)

	alice := newTestClient("alice", 16)
	bob := newTestClient("bob", 16)
	cara := newTestClient("cara", 16)
	hub.register <- alice
	hub.register <- bob
	hub.register <- cara

	hub.publish <- &IncomingMessage{ConnID: alice.ID, Username: "alice", Text: "m1"}
	hub.publish <- &IncomingMessage{ConnID: alice.ID, Username: "alice", Text: "m2"}

	for _, c := range []*Client{bob, cara} {
		require.Equal(t, "m1", receiveEvent(t, c).Text)
		require.Equal(t, "m2", receiveEvent(t, c).Text)
	}
}

func TestHubDropsEmptyMessages(t *testing.T) {
	store := &fakeStore{}
	hub, _ := startHub(t, store)

	alice := newTestClient("alice", 16)
	bob := newTestClient("bob", 16)
	hub.register <- alice
	hub.register <- bob

	hub.publish <- &IncomingMessage{ConnID: alice.ID, Username: "alice", Text: "   \t "}
	hub.publish <- &IncomingMessage{ConnID: alice.ID, Username: "alice", Text: "real"}

	// The first delivered event is the non-empty one: the blank publish
	// vanished without an error.
	require.Equal(t, "real", receiveEvent(t, bob).Text)

	require.Eventually(t, func() bool { return store.appendCount() == 1 },
		time.Second, 10*time.Millisecond)
}

func TestHubDeliveryIndependentOfPersistence(t *testing.T) {
	store := &fakeStore{failing: true}
	hub, _ := startHub(t, store)

	alice := newTestClient("alice", 16)
	bob := newTestClient("bob", 16)
	hub.register <- alice
	hub.register <- bob

	hub.publish <- &IncomingMessage{ConnID: alice.ID, Username: "alice", Text: "still delivered"}

	evt := receiveEvent(t, bob)
	require.Equal(t, "still delivered", evt.Text)

	// The append was attempted and failed; delivery above already happened.
	require.Eventually(t, func() bool { return store.appendCount() == 1 },
		time.Second, 10*time.Millisecond)
}

func TestHubPersistsBroadcastMessages(t *testing.T) {
	store := &fakeStore{}
	hub, _ := startHub(t, store)

	alice := newTestClient("alice", 16)
	hub.register <- alice

	hub.publish <- &IncomingMessage{ConnID: alice.ID, Username: "alice", Text: "for the record"}

	require.Eventually(t, func() bool {
		msgs, _ := store.ListSince(context.Background(), 0)
		return len(msgs) == 1 && msgs[0].Text == "for the record" && msgs[0].Username == "alice"
	}, time.Second, 10*time.Millisecond)
}

func TestHubPresenceLifecycle(t *testing.T) {
	store := &fakeStore{}
	hub, presence := startHub(t, store)

	alice := newTestClient("alice", 16)
	hub.register <- alice
	require.Eventually(t, func() bool { return presence.Count() == 1 },
		time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"alice"}, presence.Online())

	hub.unregister <- alice
	require.Eventually(t, func() bool { return presence.Count() == 0 },
		time.Second, 10*time.Millisecond)

	select {
	case <-alice.done:
	case <-time.After(time.Second):
		t.Fatal("client done channel not closed on unregister")
	}
}

func TestHubIdentityStaysOnlineWhileSecondSessionOpen(t *testing.T) {
	store := &fakeStore{}
	hub, presence := startHub(t, store)

	first := newTestClient("alice", 16)
	second := newTestClient("alice", 16)
	hub.register <- first
	hub.register <- second
	require.Eventually(t, func() bool { return presence.Count() == 1 },
		time.Second, 10*time.Millisecond)

	hub.unregister <- first
	// Still online through the second connection.
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, []string{"alice"}, presence.Online())

	hub.unregister <- second
	require.Eventually(t, func() bool { return presence.Count() == 0 },
		time.Second, 10*time.Millisecond)
}

// laggyStore delays the append of one chosen text, to shuffle completion
// order of concurrent writes if any were allowed.
type laggyStore struct {
	*fakeStore
	slowText string
	delay    time.Duration
}

func (s *laggyStore) Append(ctx context.Context, username, text string) (*Message, error) {
	if text == s.slowText {
		time.Sleep(s.delay)
	}
	return s.fakeStore.Append(ctx, username, text)
}

// Stored ids must follow publish order even when an earlier append is slow;
// otherwise replay would hand a reconnecting client one publisher's messages
// in the opposite order every live client saw them.
func TestHubStoresMessagesInPublishOrder(t *testing.T) {
	store := &laggyStore{fakeStore: &fakeStore{}, slowText: "m1", delay: 200 * time.Millisecond}
	hub, _ := startHub(t, store)

	alice := newTestClient("alice", 16)
	bob := newTestClient("bob", 16)
	hub.register <- alice
	hub.register <- bob

	hub.publish <- &IncomingMessage{ConnID: alice.ID, Username: "alice", Text: "m1"}
	hub.publish <- &IncomingMessage{ConnID: alice.ID, Username: "alice", Text: "m2"}

	// Live delivery keeps FIFO regardless of the store.
	require.Equal(t, "m1", receiveEvent(t, bob).Text)
	require.Equal(t, "m2", receiveEvent(t, bob).Text)

	require.Eventually(t, func() bool { return store.appendCount() == 2 },
		2*time.Second, 10*time.Millisecond)
	msgs, err := store.ListSince(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, "m1", msgs[0].Text)
	require.Equal(t, "m2", msgs[1].Text)
	require.Less(t, msgs[0].ID, msgs[1].ID)
}

// The hub publishes to the same broker it drains; a backlog of un-drained
// events must never wedge the loop.
func TestHubSurvivesSustainedPublishBacklog(t *testing.T) {
	store := &fakeStore{}
	hub, presence := startHub(t, store)

	alice := newTestClient("alice", 1)
	hub.register <- alice

	// Nobody but the sender is connected, so every event is fanned out to
	// no one; the backlog still has to flow through the broker.
	for i := 0; i < 300; i++ {
		hub.publish <- &IncomingMessage{ConnID: alice.ID, Username: "alice", Text: "spam"}
	}

	// The hub is still responsive afterwards.
	bob := newTestClient("bob", 512)
	hub.register <- bob
	require.Eventually(t, func() bool { return presence.Count() == 2 },
		2*time.Second, 10*time.Millisecond)

	hub.publish <- &IncomingMessage{ConnID: alice.ID, Username: "alice", Text: "still alive"}
	require.Eventually(t, func() bool {
		for {
			select {
			case payload := <-bob.send:
				var evt Event
				if json.Unmarshal(payload, &evt) == nil && evt.Text == "still alive" {
					return true
				}
			default:
				return false
			}
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHubShutdownReleasesClients(t *testing.T) {
	store := &fakeStore{}
	presence := NewPresenceTracker()
	hub := NewHub(NewLoopbackBroker(), store, presence, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	alice := newTestClient("alice", 16)
	hub.register <- alice
	require.Eventually(t, func() bool { return presence.Count() == 1 },
		time.Second, 10*time.Millisecond)

	cancel()

	select {
	case <-alice.done:
	case <-time.After(time.Second):
		t.Fatal("hub shutdown left the client attached")
	}
}

// A pump whose hub is gone must still be able to detach instead of blocking
// on the unregister channel forever.
func TestDetachReturnsAfterHubStopped(t *testing.T) {
	hub := NewHub(NewLoopbackBroker(), &fakeStore{}, NewPresenceTracker(), testLogger()) // never run

	alice := newTestClient("alice", 1)
	alice.hub = hub
	alice.close()

	done := make(chan struct{})
	go func() {
		alice.detach()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("detach blocked with no hub loop running")
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	store := &fakeStore{}
	hub, presence := startHub(t, store)

	alice := newTestClient("alice", 16)
	// No buffer at all: the first fan-out cannot be queued.
	stuck := newTestClient("bob", 0)
	hub.register <- alice
	hub.register <- stuck
	require.Eventually(t, func() bool { return presence.Count() == 2 },
		time.Second, 10*time.Millisecond)

	hub.publish <- &IncomingMessage{ConnID: alice.ID, Username: "alice", Text: "hi"}

	require.Eventually(t, func() bool { return presence.Count() == 1 },
		time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"alice"}, presence.Online())
}
