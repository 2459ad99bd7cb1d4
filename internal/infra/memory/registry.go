package memory

import (
	"sync"

	"github.com/paifgx/quizdom-sub003/internal/domain"
	"github.com/paifgx/quizdom-sub003/internal/engine"
)

// Registry tracks live engines by session id so callers can route backend
// events to the right game.
type Registry struct {
	mu    sync.RWMutex
	games map[string]*engine.Engine
}

func NewRegistry() *Registry {
	return &Registry{
		games: make(map[string]*engine.Engine),
	}
}

func (r *Registry) Register(sessionID string, game *engine.Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.games[sessionID] = game
}

func (r *Registry) Get(sessionID string) (*engine.Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	game, ok := r.games[sessionID]
	return game, ok
}

// DeleteIfFinished drops the engine once its session reached the terminal
// status.
func (r *Registry) DeleteIfFinished(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	game, ok := r.games[sessionID]
	if !ok {
		return
	}
	if game.Snapshot().Status == domain.StatusFinished {
		delete(r.games, sessionID)
	}
}
