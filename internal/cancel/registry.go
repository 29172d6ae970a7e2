// Package cancel tracks cooperative cancellation flags for analysis sessions.
package cancel

import (
	"sync"

	"github.com/simpleflo/filescout/pkg/models"
)

// Registry maps session IDs to cancellation flags. One Registry is created
// per process and handed to every component that runs or cancels sessions.
type Registry struct {
	mu    sync.RWMutex
	flags map[string]bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{flags: make(map[string]bool)}
}

// Register adds a session with its flag cleared. Re-registering an active
// session resets its flag.
func (r *Registry) Register(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flags[id] = false
}

// Cancel sets the flag for a registered session. It returns an
// E_SESSION_NOT_FOUND error when the session is unknown or already finished.
func (r *Registry) Cancel(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.flags[id]; !ok {
		return models.NewError(models.ErrSessionNotFound, "session not found").
			WithDetails("session_id", id)
	}
	r.flags[id] = true
	return nil
}

// IsCancelled reports whether cancellation was requested. Unknown sessions
// are never cancelled.
func (r *Registry) IsCancelled(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.flags[id]
}

// Active reports whether the session is registered.
func (r *Registry) Active(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.flags[id]
	return ok
}

// Unregister removes the session. It is safe to call for unknown IDs.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.flags, id)
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.flags)
}
