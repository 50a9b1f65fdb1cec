package session

import (
	"sync"

	"github.com/chefdemo-gingerale533/jojoburgerspos/internal/pkg/codec"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Registry is the set of live sessions, keyed by session id.
type Registry struct {
	sessions map[uuid.UUID]*Session
	mu       sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]*Session),
	}
}

// Register adds s to the registry.
func (r *Registry) Register(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID()]; ok {
		return errors.Wrap(ErrSessionAlreadyExists, s.ID().String())
	}
	r.sessions[s.ID()] = s
	return nil
}

// Get returns the session with the given id.
func (r *Registry) Get(id uuid.UUID) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.sessions[id]; ok {
		return s, nil
	}
	return nil, ErrSessionNotFound
}

// Unregister removes the session with the given id.
func (r *Registry) Unregister(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(r.sessions, id)
	return nil
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Range calls fn for each session registered at the time of the call,
// stopping early if fn returns false. fn runs without the registry lock held.
func (r *Registry) Range(fn func(*Session) bool) {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()
	for _, s := range sessions {
		if !fn(s) {
			return
		}
	}
}

// Broadcast enqueues env on every registered session and returns how many
// sessions accepted it. Sessions that are closing or have a full queue are skipped.
func (r *Registry) Broadcast(env codec.Envelope) int {
	n := 0
	r.Range(func(s *Session) bool {
		if err := s.Enqueue(env); err == nil {
			n++
		}
		return true
	})
	return n
}
