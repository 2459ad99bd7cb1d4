package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/paifgx/quizdom-sub003/internal/domain"
	"github.com/paifgx/quizdom-sub003/internal/engine"
)

// SessionStore is a Redis-aware engine registry.
// Notes:
//   - Engines stay in a local in-memory map; the state machine itself is
//     in-process.
//   - Redis marks session liveness so other instances (or an operator) can
//     see which sessions this client is playing.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.RWMutex
	games  map[string]*engine.Engine
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client: client,
		ttl:    ttl,
		games:  make(map[string]*engine.Engine),
	}
}

func (s *SessionStore) Register(sessionID string, game *engine.Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[sessionID] = game
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(sessionID), "1", s.ttl).Err()
}

func (s *SessionStore) Get(sessionID string) (*engine.Engine, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	game, ok := s.games[sessionID]
	return game, ok
}

func (s *SessionStore) DeleteIfFinished(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[sessionID]
	if !ok {
		return
	}
	if game.Snapshot().Status == domain.StatusFinished {
		delete(s.games, sessionID)
		_ = s.client.Del(context.Background(), s.key(sessionID)).Err()
	}
}

func (s *SessionStore) key(sessionID string) string {
	return "game:session:" + sessionID
}
