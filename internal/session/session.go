// ABOUTME: Tracks client sessions across the gateway's serving transports.
// ABOUTME: Close is check-and-set so concurrent triggers release resources once.

package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound indicates no open session exists for the given ID.
var ErrSessionNotFound = errors.New("session not found")

// State describes a session's lifecycle.
type State int

const (
	StateOpen State = iota
	StateClosing
	StateClosed
)

// Session is one client's conversation with the gateway, regardless of
// which transport carries it. Handle holds whatever the transport needs
// to reach the client, such as an SSE stream writer; the registry never
// interprets it.
type Session struct {
	ID        string
	Transport string
	Handle    any
	CreatedAt time.Time

	mu      sync.Mutex
	state   State
	cleanup func()
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// close runs the session's cleanup exactly once. Every path that ends a
// session funnels through here, so a client disconnect racing an explicit
// DELETE still releases resources a single time.
func (s *Session) close() {
	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return
	}
	s.state = StateClosing
	cleanup := s.cleanup
	s.mu.Unlock()

	if cleanup != nil {
		cleanup()
	}

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
}

// Registry tracks the open sessions of all transports.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry returns an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Open creates a session with a fresh unguessable ID. cleanup, if
// non-nil, runs exactly once when the session closes.
func (r *Registry) Open(transport string, handle any, cleanup func()) *Session {
	sess := &Session{
		ID:        uuid.New().String(),
		Transport: transport,
		Handle:    handle,
		CreatedAt: time.Now(),
		state:     StateOpen,
		cleanup:   cleanup,
	}
	r.mu.Lock()
	r.sessions[sess.ID] = sess
	r.mu.Unlock()
	return sess
}

// Get returns the session for an ID, open or not yet removed.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Route resolves an inbound message's session ID to its open session.
// Messages for unknown or closed sessions are rejected, never guessed.
func (r *Registry) Route(id string) (*Session, error) {
	sess, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if sess.State() != StateOpen {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Close ends a session and removes it from the registry. Closing an
// already-closed or unknown session is a no-op.
func (r *Registry) Close(id string) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		sess.close()
	}
}

// CloseAll ends every session, for gateway shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}

// Count returns the number of tracked sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
