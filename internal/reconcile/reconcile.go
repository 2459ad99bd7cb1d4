package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/paifgx/quizdom-sub003/internal/api"
	"github.com/paifgx/quizdom-sub003/internal/domain"
	"github.com/paifgx/quizdom-sub003/internal/engine"
	"github.com/paifgx/quizdom-sub003/internal/ws"
)

// ErrPollBudgetExhausted is returned when polling stopped before all expected
// players answered.
var ErrPollBudgetExhausted = errors.New("polling attempts exhausted")

// SessionAPI is the slice of the remote API the reconciler consumes.
type SessionAPI interface {
	SubmitAnswer(ctx context.Context, sessionID, questionID, answerID string) (api.AnswerResponse, error)
	SessionStatus(ctx context.Context, sessionID string) (api.SessionStatusResponse, error)
}

// Config wires a Reconciler to its engine and backend.
type Config struct {
	Engine    *engine.Engine
	API       SessionAPI
	SessionID string

	// ViewerBackendID identifies the local viewer among backend players. The
	// viewer always takes the primary slot regardless of join order.
	ViewerBackendID  string
	PrimaryLocalID   string
	SecondaryLocalID string

	PollInterval    time.Duration
	PollMaxAttempts int

	Clock  clockwork.Clock
	Logger zerolog.Logger

	// OnHeartLoss fires when an authoritative update lowered a player's hearts.
	OnHeartLoss func(localPlayerID string, heartsRemaining int)
}

// Reconciler merges authoritative backend state into the local engine. It
// never mutates player records itself; all changes flow through the engine's
// update entry points.
type Reconciler struct {
	engine    *engine.Engine
	api       SessionAPI
	sessionID string

	viewerID    string
	primaryID   string
	secondaryID string

	pollInterval    time.Duration
	pollMaxAttempts int
	clock           clockwork.Clock
	log             zerolog.Logger
	onHeartLoss     func(string, int)

	seq uint64

	mu          sync.Mutex
	established bool
	mapping     map[string]string // backend player id -> local player id
	lastKnown   map[string]domain.BackendPlayer
	lastSeq     uint64
	lastErr     error
}

func New(cfg Config) *Reconciler {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.PollMaxAttempts <= 0 {
		cfg.PollMaxAttempts = 15
	}
	onHeartLoss := cfg.OnHeartLoss
	if onHeartLoss == nil {
		onHeartLoss = func(string, int) {}
	}
	return &Reconciler{
		engine:          cfg.Engine,
		api:             cfg.API,
		sessionID:       cfg.SessionID,
		viewerID:        cfg.ViewerBackendID,
		primaryID:       cfg.PrimaryLocalID,
		secondaryID:     cfg.SecondaryLocalID,
		pollInterval:    cfg.PollInterval,
		pollMaxAttempts: cfg.PollMaxAttempts,
		clock:           clock,
		log:             cfg.Logger.With().Str("session_id", cfg.SessionID).Logger(),
		onHeartLoss:     onHeartLoss,
		mapping:         make(map[string]string),
		lastKnown:       make(map[string]domain.BackendPlayer),
	}
}

// NextSeq allocates a snapshot sequence number. It must be taken when a
// status request is issued, not when its response arrives, so that a stale
// response cannot overwrite a fresher one (last-produced-wins).
func (r *Reconciler) NextSeq() uint64 {
	return atomic.AddUint64(&r.seq, 1)
}

// EstablishPlayerMapping binds backend identities to local slots. It needs at
// least two visible backend players and runs at most once per session; later
// calls are no-ops. The viewer takes the primary slot; when the viewer cannot
// be identified, the host does.
func (r *Reconciler) EstablishPlayerMapping(players []domain.BackendPlayer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.established {
		return nil
	}
	if len(players) < 2 {
		return domain.ErrMappingUnresolved
	}

	primary := r.pickPrimary(players)
	if primary == nil {
		return domain.ErrMappingUnresolved
	}
	var secondary *domain.BackendPlayer
	for i := range players {
		if players[i].ID != primary.ID {
			secondary = &players[i]
			break
		}
	}

	r.mapping[primary.ID] = r.primaryID
	r.mapping[secondary.ID] = r.secondaryID
	r.lastKnown[primary.ID] = *primary
	r.lastKnown[secondary.ID] = *secondary
	r.established = true

	r.log.Info().
		Str("primary_backend", primary.ID).
		Str("secondary_backend", secondary.ID).
		Msg("player mapping established")
	return nil
}

func (r *Reconciler) pickPrimary(players []domain.BackendPlayer) *domain.BackendPlayer {
	if r.viewerID != "" {
		for i := range players {
			if players[i].ID == r.viewerID {
				return &players[i]
			}
		}
	}
	// Viewer identity unavailable: assume the viewer is the host.
	for i := range players {
		if players[i].IsHost {
			return &players[i]
		}
	}
	return nil
}

// Established reports whether the identity mapping has been resolved.
func (r *Reconciler) Established() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.established
}

type playerDelta struct {
	localID    string
	score      int
	hearts     int
	heartsLost bool
}

// Reconcile merges one authoritative snapshot. Stale snapshots (sequence at
// or below the last applied) are dropped. Backend players without an
// established mapping are ignored.
func (r *Reconciler) Reconcile(snap domain.PlayerSnapshot) {
	r.mu.Lock()
	if snap.Seq <= r.lastSeq {
		r.mu.Unlock()
		r.log.Debug().Uint64("seq", snap.Seq).Msg("dropping stale snapshot")
		return
	}
	r.lastSeq = snap.Seq

	var deltas []playerDelta
	for _, bp := range snap.Players {
		localID, ok := r.mapping[bp.ID]
		if !ok {
			continue
		}
		prev, seen := r.lastKnown[bp.ID]
		if seen && prev.Score == bp.Score && prev.Hearts == bp.Hearts {
			continue
		}
		deltas = append(deltas, playerDelta{
			localID:    localID,
			score:      bp.Score,
			hearts:     bp.Hearts,
			heartsLost: seen && bp.Hearts < prev.Hearts,
		})
		r.lastKnown[bp.ID] = bp
	}
	r.mu.Unlock()

	for _, d := range deltas {
		if err := r.engine.ApplyBackendUpdate(d.localID, d.score, d.hearts); err != nil {
			r.setError(err)
			continue
		}
		if d.heartsLost {
			r.onHeartLoss(d.localID, d.hearts)
		}
	}
}

// SubmitAnswer forwards a local answer to the backend, back-fills the
// revealed correct answer, then records the answer in the engine. A remote
// failure is stored as a transient error; the optimistic local answer stands
// either way.
func (r *Reconciler) SubmitAnswer(ctx context.Context, localPlayerID string, answerIndex int, answeredAt time.Time) bool {
	snap := r.engine.Snapshot()
	question := snap.Question

	answerID := ""
	if answerIndex >= 0 && answerIndex < len(question.Options) {
		answerID = question.Options[answerIndex].BackendID
	}

	resp, err := r.api.SubmitAnswer(ctx, r.sessionID, question.ID, answerID)
	if err != nil {
		r.setError(err)
		r.log.Warn().Err(err).Msg("answer submission failed, keeping optimistic local state")
	} else if question.CorrectIndex == domain.CorrectIndexUnknown {
		if idx, ok := optionIndexByBackendID(question.Options, resp.CorrectAnswerID); ok {
			if err := r.engine.RevealCorrectIndex(snap.CurrentIndex, idx); err != nil {
				r.setError(err)
			}
		}
	}

	return r.engine.SubmitAnswer(localPlayerID, answerIndex, answeredAt)
}

// PollUntilAnswered repeatedly fetches session status at a fixed interval
// until all mapped players have answered or the attempt budget elapses. It
// bounds worst-case "waiting for opponent" time.
func (r *Reconciler) PollUntilAnswered(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < r.pollMaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
		}

		seq := r.NextSeq()
		status, err := r.api.SessionStatus(ctx, r.sessionID)
		if err != nil {
			r.setError(err)
			continue
		}
		if !r.Established() {
			if err := r.EstablishPlayerMapping(status.Players); err != nil {
				continue
			}
		}
		r.Reconcile(domain.PlayerSnapshot{Seq: seq, Players: status.Players})

		if r.allMappedAnswered(status.Players) {
			return nil
		}
	}
	return ErrPollBudgetExhausted
}

func (r *Reconciler) allMappedAnswered(players []domain.BackendPlayer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.established {
		return false
	}
	for _, bp := range players {
		if _, ok := r.mapping[bp.ID]; !ok {
			continue
		}
		if !bp.HasAnswered {
			return false
		}
	}
	return true
}

// HandleMessage consumes a classified websocket message. Payloads carrying a
// players array are treated as authoritative snapshots.
func (r *Reconciler) HandleMessage(msg ws.Message) {
	var payload struct {
		Players []domain.BackendPlayer `json:"players"`
	}
	if err := json.Unmarshal(msg.Raw, &payload); err != nil || len(payload.Players) == 0 {
		return
	}
	if !r.Established() {
		if err := r.EstablishPlayerMapping(payload.Players); err != nil {
			return
		}
	}
	r.Reconcile(domain.PlayerSnapshot{Seq: r.NextSeq(), Players: payload.Players})
}

// LastError returns the most recent transient failure, if any. Failures never
// desynchronize engine state; the engine stays the fallback source of truth.
func (r *Reconciler) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// ClearError resets the transient error state after the caller surfaced it.
func (r *Reconciler) ClearError() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastErr = nil
}

func (r *Reconciler) setError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastErr = err
}

func optionIndexByBackendID(options []domain.Option, backendID string) (int, bool) {
	if backendID == "" {
		return 0, false
	}
	for _, opt := range options {
		if opt.BackendID == backendID {
			return opt.Index, true
		}
	}
	return 0, false
}
