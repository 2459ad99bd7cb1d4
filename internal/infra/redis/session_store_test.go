package redis

import (
	"testing"
	"time"

	"github.com/paifgx/quizdom-sub003/internal/domain"
	"github.com/paifgx/quizdom-sub003/internal/engine"
)

func TestSessionStoreMarksLiveness(t *testing.T) {
	mr, client := newTestClient(t)
	store := NewSessionStore(client, time.Hour)
	game := newFinishableGame(t)

	store.Register("game-1", game)
	got, ok := store.Get("game-1")
	if !ok || got != game {
		t.Fatalf("expected registered engine back")
	}
	if !mr.Exists("game:session:game-1") {
		t.Fatalf("expected liveness marker for the registered session")
	}

	// The marker and the engine survive while the game is live.
	store.DeleteIfFinished("game-1")
	if !mr.Exists("game:session:game-1") {
		t.Fatalf("liveness marker must survive for an unfinished game")
	}

	finishGame(t, game)
	store.DeleteIfFinished("game-1")
	if _, ok := store.Get("game-1"); ok {
		t.Fatalf("finished game must be dropped")
	}
	if mr.Exists("game:session:game-1") {
		t.Fatalf("liveness marker must be cleared with the finished game")
	}
}

func newFinishableGame(t *testing.T) *engine.Engine {
	t.Helper()
	game, err := engine.New(engine.Config{
		SessionID: "game-1",
		Mode:      domain.ModeSolo,
		Players:   []engine.PlayerSeed{{ID: "player1", Name: "Alice", Slot: domain.SlotPlayer1}},
		Questions: []domain.Question{{
			ID:           "q1",
			Options:      []domain.Option{{Index: 0}, {Index: 1}},
			CorrectIndex: 0,
		}},
		QuestionTime: 30 * time.Second,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return game
}

func finishGame(t *testing.T, game *engine.Engine) {
	t.Helper()
	game.Start()
	game.SubmitAnswer("player1", 0, time.Now())
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if game.Snapshot().Status == domain.StatusFinished {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("game never reached finished state")
}
