package chat

import "sync"

// PresenceTracker is the process-wide set of identities that currently have an
// open connection. A username appears at most once no matter how the calls
// interleave; a single mutex is the only mutation point. State is not
// persisted, a restart starts from empty.
type PresenceTracker struct {
	mu    sync.RWMutex
	index map[string]struct{}
	order []string
}

func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{index: make(map[string]struct{})}
}

// MarkOnline records the identity as connected. Idempotent: already-online
// identities are left untouched.
func (p *PresenceTracker) MarkOnline(username string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.index[username]; ok {
		return
	}
	p.index[username] = struct{}{}
	p.order = append(p.order, username)
}

// MarkOffline removes the identity. No-op if it was never online.
func (p *PresenceTracker) MarkOffline(username string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.index[username]; !ok {
		return
	}
	delete(p.index, username)
	for i, u := range p.order {
		if u == username {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// Online returns a snapshot of the online identities in the order they
// connected.
func (p *PresenceTracker) Online() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

func (p *PresenceTracker) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.order)
}
