package memory

import (
	"context"
	"sync"

	"github.com/paifgx/quizdom-sub003/internal/domain"
)

// ResultJournal keeps finished game results in memory.
type ResultJournal struct {
	mu      sync.RWMutex
	results map[string]domain.GameResult
}

func NewResultJournal() *ResultJournal {
	return &ResultJournal{results: make(map[string]domain.GameResult)}
}

func (j *ResultJournal) Record(_ context.Context, result domain.GameResult) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.results[result.SessionID] = result
	return nil
}

func (j *ResultJournal) Load(_ context.Context, sessionID string) (domain.GameResult, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	result, ok := j.results[sessionID]
	if !ok {
		return domain.GameResult{}, domain.ErrGameNotFound
	}
	return result, nil
}
