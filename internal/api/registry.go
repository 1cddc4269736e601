// Package api exposes sessions over HTTP for a presentation layer.
package api

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cbegin/dnasonify-go"
)

// ErrNotFound is returned for unknown session IDs.
var ErrNotFound = errors.New("session not found")

// ErrFull is returned when the registry is at capacity.
var ErrFull = errors.New("too many sessions")

// Registry holds the live sessions of a server.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*dnasonify.Session
	defaults dnasonify.Config
	limit    int
}

// NewRegistry returns a registry creating sessions from defaults. limit <= 0
// means unbounded.
func NewRegistry(defaults dnasonify.Config, limit int) *Registry {
	return &Registry{
		sessions: map[string]*dnasonify.Session{},
		defaults: defaults,
		limit:    limit,
	}
}

// Defaults returns the configuration new sessions start from.
func (r *Registry) Defaults() dnasonify.Config { return r.defaults }

// Create starts a session with cfg. Server sessions never open the audio
// device.
func (r *Registry) Create(cfg dnasonify.Config) (*dnasonify.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.limit > 0 && len(r.sessions) >= r.limit {
		return nil, fmt.Errorf("%w (limit %d)", ErrFull, r.limit)
	}
	s, err := dnasonify.NewSession(dnasonify.WithConfig(cfg))
	if err != nil {
		return nil, err
	}
	r.sessions[s.ID()] = s
	return s, nil
}

func (r *Registry) Get(id string) (*dnasonify.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// Delete closes and forgets a session.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.Close()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close closes every session.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = map[string]*dnasonify.Session{}
	r.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}
