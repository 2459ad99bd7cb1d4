package engine

import "github.com/paifgx/quizdom-sub003/internal/domain"

// EventType classifies engine notifications.
type EventType string

const (
	// EventGameStarted fires on the waiting -> playing transition.
	EventGameStarted EventType = "game-started"
	// EventAnswerProcessed fires after an accepted answer has been scored.
	EventAnswerProcessed EventType = "answer-processed"
	// EventStateChanged fires when a backend update changed score or hearts.
	EventStateChanged EventType = "state-changed"
	// EventQuestionAdvanced fires when the next question becomes current.
	EventQuestionAdvanced EventType = "question-advanced"
	// EventGameOver fires exactly once, when the session finishes.
	EventGameOver EventType = "game-over"
)

// Event is delivered to subscribers on every observable engine transition.
type Event struct {
	Type     EventType
	PlayerID string
	Snapshot Snapshot
	Result   *domain.GameResult
}

// Snapshot is a copy of the engine's externally visible state.
type Snapshot struct {
	SessionID     string
	Mode          domain.GameMode
	Status        domain.SessionStatus
	CurrentIndex  int
	Question      domain.Question
	Players       []domain.PlayerState
	TeamHearts    int
	MaxTeamHearts int
}

// Player returns the snapshot record for id, if present.
func (s Snapshot) Player(id string) (domain.PlayerState, bool) {
	for _, p := range s.Players {
		if p.ID == id {
			return p, true
		}
	}
	return domain.PlayerState{}, false
}
