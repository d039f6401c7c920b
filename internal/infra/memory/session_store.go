package memory

import (
	"sync"

	"lorequiz-service/internal/app"
)

// SessionStore keeps live controllers keyed by browsing session.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*app.Controller
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*app.Controller)}
}

// Swap installs controller and hands back whatever the browsing session was running.
func (s *SessionStore) Swap(sessionID string, controller *app.Controller) (*app.Controller, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous, ok := s.sessions[sessionID]
	s.sessions[sessionID] = controller
	return previous, ok
}

func (s *SessionStore) Get(sessionID string) (*app.Controller, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	controller, ok := s.sessions[sessionID]
	return controller, ok
}

// CompareAndDelete drops the entry only while it still points at controller.
func (s *SessionStore) CompareAndDelete(sessionID string, controller *app.Controller) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[sessionID] != controller {
		return false
	}
	delete(s.sessions, sessionID)
	return true
}
