package broadcast

import (
	"sync"

	"pumpmonitor/internal/observability"
)

// Registry is the set of live sessions, keyed by remote address. It is
// the sole authority for which clients are still served. The lock covers
// only mutation and snapshotting, never a network call.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers a session.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	r.sessions[s.Addr()] = s
	n := len(r.sessions)
	r.mu.Unlock()

	observability.SetConnectedClients(n)
}

// Remove unregisters the session with the given address.
func (r *Registry) Remove(addr string) {
	r.mu.Lock()
	delete(r.sessions, addr)
	n := len(r.sessions)
	r.mu.Unlock()

	observability.SetConnectedClients(n)
}

// RemoveBatch unregisters all given addresses in one critical section.
func (r *Registry) RemoveBatch(addrs []string) {
	if len(addrs) == 0 {
		return
	}

	r.mu.Lock()
	for _, addr := range addrs {
		delete(r.sessions, addr)
	}
	n := len(r.sessions)
	r.mu.Unlock()

	observability.SetConnectedClients(n)
}

// Snapshot returns the current sessions. The returned slice is owned by
// the caller; later registry changes do not affect it.
func (r *Registry) Snapshot() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
