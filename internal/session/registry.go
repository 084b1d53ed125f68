package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Flash is a one-shot message shown on the next page render.
type Flash struct {
	Error bool
	Text  string
}

// Entry is one browser session. Callers hold the embedded mutex for the
// whole action so actions on the same session run one at a time.
type Entry struct {
	sync.Mutex
	ID     string
	State  State
	APIKey string // user-supplied key; kept in memory only
	Flash  *Flash

	lastSeen time.Time
}

// TakeFlash returns the pending flash message and clears it.
func (e *Entry) TakeFlash() *Flash {
	f := e.Flash
	e.Flash = nil
	return f
}

// Registry keeps live sessions in memory. Nothing survives a restart.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Entry
	ttl     time.Duration
	now     func() time.Time
}

// NewRegistry creates a registry whose sessions expire after ttl of inactivity.
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Create starts a new idle session with a random ID.
func (r *Registry) Create() *Entry {
	e := &Entry{
		ID:       uuid.NewString(),
		State:    State{Phase: PhaseIdle},
		lastSeen: r.now(),
	}
	r.mu.Lock()
	r.entries[e.ID] = e
	r.mu.Unlock()
	return e
}

// Get returns a live session and refreshes its idle timer.
func (r *Registry) Get(id string) (*Entry, bool) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	now := r.now()
	if r.ttl > 0 && now.Sub(e.lastSeen) > r.ttl {
		delete(r.entries, id)
		return nil, false
	}
	e.lastSeen = now
	return e, true
}

// Delete drops a session.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep removes expired sessions and returns how many were dropped.
func (r *Registry) Sweep() int {
	if r.ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	n := 0
	for id, e := range r.entries {
		if now.Sub(e.lastSeen) > r.ttl {
			delete(r.entries, id)
			n++
		}
	}
	return n
}

// Run sweeps expired sessions every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := r.Sweep(); n > 0 {
				slog.Debug("expired sessions removed", "count", n, "live", r.Len())
			}
		}
	}
}
