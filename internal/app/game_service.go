package app

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/paifgx/quizdom-sub003/internal/domain"
	"github.com/paifgx/quizdom-sub003/internal/engine"
)

// QuestionProvider hands out the question set for a session (cached remote
// API, static fixtures, etc).
type QuestionProvider interface {
	GetQuestions(ctx context.Context, sessionID string) ([]domain.Question, error)
}

// GameRegistry tracks live engines by session id (in-memory, Redis-marked, etc).
type GameRegistry interface {
	Register(sessionID string, game *engine.Engine)
	Get(sessionID string) (*engine.Engine, bool)
	DeleteIfFinished(sessionID string)
}

// ResultJournal persists finished game results.
type ResultJournal interface {
	Record(ctx context.Context, result domain.GameResult) error
}

// GameService owns game lifecycle use cases: create an engine for a session,
// look it up, and journal its result when it finishes.
type GameService struct {
	questions QuestionProvider
	registry  GameRegistry
	journal   ResultJournal
	clock     clockwork.Clock
	log       zerolog.Logger
}

func NewGameService(questions QuestionProvider, registry GameRegistry, journal ResultJournal, clock clockwork.Clock, logger zerolog.Logger) *GameService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &GameService{
		questions: questions,
		registry:  registry,
		journal:   journal,
		clock:     clock,
		log:       logger,
	}
}

// GameParams describes one session to create.
type GameParams struct {
	SessionID    string
	Mode         domain.GameMode
	Players      []engine.PlayerSeed
	QuestionTime time.Duration
	Hearts       int
}

// CreateGame loads the question set, builds an engine in the waiting state
// and registers it.
func (s *GameService) CreateGame(ctx context.Context, params GameParams) (*engine.Engine, error) {
	questions, err := s.questions.GetQuestions(ctx, params.SessionID)
	if err != nil {
		return nil, err
	}

	game, err := engine.New(engine.Config{
		SessionID:    params.SessionID,
		Mode:         params.Mode,
		Players:      params.Players,
		Questions:    questions,
		QuestionTime: params.QuestionTime,
		Hearts:       params.Hearts,
		Clock:        s.clock,
		Logger:       s.log,
	})
	if err != nil {
		return nil, err
	}
	s.registry.Register(params.SessionID, game)
	return game, nil
}

// Get returns the live engine for a session.
func (s *GameService) Get(sessionID string) (*engine.Engine, error) {
	game, ok := s.registry.Get(sessionID)
	if !ok {
		return nil, domain.ErrGameNotFound
	}
	return game, nil
}

// FinishGame journals the final result and drops the engine from the
// registry. It is a no-op for sessions that have not finished.
func (s *GameService) FinishGame(ctx context.Context, sessionID string) error {
	game, ok := s.registry.Get(sessionID)
	if !ok {
		return domain.ErrGameNotFound
	}
	result, done := game.Result()
	if !done {
		return nil
	}
	if s.journal != nil {
		if err := s.journal.Record(ctx, result); err != nil {
			// Journal failures must not lose the game outcome for the caller.
			s.log.Error().Err(err).Str("session_id", sessionID).Msg("failed to journal game result")
			return err
		}
	}
	s.registry.DeleteIfFinished(sessionID)
	return nil
}
