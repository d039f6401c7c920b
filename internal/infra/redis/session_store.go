package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"lorequiz-service/internal/app"
)

// SessionStore keeps controllers in process, since they own a timer goroutine,
// and marks each live browsing session in Redis with the quiz it is playing.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	logger   *zap.Logger
	mu       sync.Mutex
	sessions map[string]*app.Controller
}

func NewSessionStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		logger:   logger,
		sessions: make(map[string]*app.Controller),
	}
}

func (s *SessionStore) Swap(sessionID string, controller *app.Controller) (*app.Controller, bool) {
	s.mu.Lock()
	previous, ok := s.sessions[sessionID]
	s.sessions[sessionID] = controller
	s.mu.Unlock()

	if err := s.client.Set(context.Background(), s.key(sessionID), controller.QuizID(), s.ttl).Err(); err != nil {
		s.logger.Warn("mark session live failed", zap.String("session", sessionID), zap.Error(err))
	}
	return previous, ok
}

func (s *SessionStore) Get(sessionID string) (*app.Controller, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	controller, ok := s.sessions[sessionID]
	return controller, ok
}

func (s *SessionStore) CompareAndDelete(sessionID string, controller *app.Controller) bool {
	s.mu.Lock()
	if s.sessions[sessionID] != controller {
		s.mu.Unlock()
		return false
	}
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if err := s.client.Del(context.Background(), s.key(sessionID)).Err(); err != nil {
		s.logger.Warn("clear session marker failed", zap.String("session", sessionID), zap.Error(err))
	}
	return true
}

func (s *SessionStore) key(sessionID string) string {
	return "quiz:session:" + sessionID
}
