package session

import (
	"sync"
	"time"
)

// DefaultIdleTimeout is how long an untouched session is kept.
const DefaultIdleTimeout = 24 * time.Hour

// Factory builds a fresh session for a key seen for the first time.
type Factory func(key string) *Session

// Registry owns one Session per room+sender pair. Calls for the same key
// run one at a time; different keys proceed in parallel. The memory store
// behind the sessions stays shared.
type Registry struct {
	mu      sync.Mutex
	factory Factory
	idle    time.Duration
	entries map[string]*entry
	nowFunc func() time.Time
}

type entry struct {
	mu       sync.Mutex
	session  *Session
	lastUsed time.Time
}

// NewRegistry returns a registry that creates sessions with factory and
// evicts them after idle without use. idle <= 0 uses DefaultIdleTimeout.
func NewRegistry(factory Factory, idle time.Duration) *Registry {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	return &Registry{
		factory: factory,
		idle:    idle,
		entries: make(map[string]*entry),
		nowFunc: time.Now,
	}
}

// Key builds the registry key for a room+sender pair.
func Key(roomID, senderID string) string {
	return roomID + ":" + senderID
}

// Do runs fn with the session for key, creating it on first use.
func (r *Registry) Do(key string, fn func(*Session) error) error {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		e = &entry{session: r.factory(key)}
		r.entries[key] = e
	}
	e.lastUsed = r.nowFunc()
	r.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.session)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// EvictIdle drops sessions unused for longer than the idle timeout and
// returns how many were dropped. Sessions in the middle of a call are kept.
func (r *Registry) EvictIdle() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc()
	n := 0
	for key, e := range r.entries {
		if now.Sub(e.lastUsed) <= r.idle {
			continue
		}
		if !e.mu.TryLock() {
			continue
		}
		delete(r.entries, key)
		e.mu.Unlock()
		n++
	}
	return n
}
