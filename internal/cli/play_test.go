package cli

import (
	"testing"

	"github.com/paifgx/quizdom-sub003/internal/domain"
)

func TestPlayerSeeds(t *testing.T) {
	solo := playerSeeds(domain.ModeSolo, "Alice")
	if len(solo) != 1 || solo[0].Slot != domain.SlotPlayer1 {
		t.Fatalf("unexpected solo roster: %+v", solo)
	}

	competitive := playerSeeds(domain.ModeCompetitive, "Alice")
	if len(competitive) != 2 {
		t.Fatalf("expected two competitive players, got %d", len(competitive))
	}
	if competitive[0].Slot != domain.SlotPlayer1 || competitive[1].Slot != domain.SlotPlayer2 {
		t.Fatalf("competitive players must take opposing slots: %+v", competitive)
	}

	collaborative := playerSeeds(domain.ModeCollaborative, "Alice")
	if len(collaborative) != 2 {
		t.Fatalf("expected two collaborative players, got %d", len(collaborative))
	}
	for _, seed := range collaborative {
		if seed.Slot != domain.SlotTeam {
			t.Fatalf("collaborative players must share the team slot: %+v", collaborative)
		}
	}
}
