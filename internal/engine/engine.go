package engine

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/paifgx/quizdom-sub003/internal/domain"
)

// Scoring tiers by response time since the question was shown. Incorrect
// answers always score zero.
const (
	fastAnswerWindow   = 3 * time.Second
	mediumAnswerWindow = 6 * time.Second
	fastAnswerPoints   = 100
	mediumAnswerPoints = 50
)

// DefaultAdvanceDelay is the pause between a completed question and the next
// one becoming current.
const DefaultAdvanceDelay = 2 * time.Second

// PlayerSeed describes one local participant at engine construction time.
type PlayerSeed struct {
	ID   string
	Name string
	Slot domain.PlayerSlot
}

// Config carries everything an Engine needs. Clock defaults to the real
// clock; tests inject a fake one.
type Config struct {
	SessionID    string
	Mode         domain.GameMode
	Players      []PlayerSeed
	Questions    []domain.Question
	QuestionTime time.Duration
	Hearts       int
	AdvanceDelay time.Duration
	Clock        clockwork.Clock
	Logger       zerolog.Logger
}

// Engine is the local game state machine for one session. It owns the player
// records exclusively; the reconciliation layer requests changes through
// ApplyBackendUpdate and RevealCorrectIndex, never by mutating state directly.
//
// All guards (one in-flight answer, one in-flight advance) are fields of the
// instance, so concurrent sessions never share state.
type Engine struct {
	id           string
	mode         domain.GameMode
	questionTime time.Duration
	advanceDelay time.Duration
	clock        clockwork.Clock
	log          zerolog.Logger

	mu            sync.Mutex
	status        domain.SessionStatus
	questions     []domain.Question
	currentIndex  int
	players       map[string]*domain.PlayerState
	order         []string
	teamHearts    int
	maxTeamHearts int

	// response times awaiting a correct-answer reveal, keyed by player id
	pendingMs map[string]time.Duration

	answering    bool
	advancing    bool
	gameOverSent bool

	timerGen      int
	questionTimer clockwork.Timer

	subscribers map[chan Event]struct{}
	result      *domain.GameResult
}

// New validates the config and builds an engine in the waiting state.
func New(cfg Config) (*Engine, error) {
	if len(cfg.Players) == 0 {
		return nil, domain.ErrNoPlayers
	}
	if len(cfg.Questions) == 0 {
		return nil, domain.ErrNoQuestions
	}
	hearts := cfg.Hearts
	if hearts <= 0 {
		hearts = domain.DefaultHearts
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	delay := cfg.AdvanceDelay
	if delay <= 0 {
		delay = DefaultAdvanceDelay
	}

	e := &Engine{
		id:            cfg.SessionID,
		mode:          cfg.Mode,
		questionTime:  cfg.QuestionTime,
		advanceDelay:  delay,
		clock:         clock,
		log:           cfg.Logger.With().Str("session_id", cfg.SessionID).Logger(),
		status:        domain.StatusWaiting,
		questions:     append([]domain.Question(nil), cfg.Questions...),
		currentIndex:  -1,
		players:       make(map[string]*domain.PlayerState, len(cfg.Players)),
		teamHearts:    hearts,
		maxTeamHearts: hearts,
		pendingMs:     make(map[string]time.Duration),
		subscribers:   make(map[chan Event]struct{}),
	}
	for _, seed := range cfg.Players {
		e.players[seed.ID] = &domain.PlayerState{
			ID:             seed.ID,
			Name:           seed.Name,
			Slot:           seed.Slot,
			Hearts:         hearts,
			MaxHearts:      hearts,
			SelectedAnswer: domain.NoAnswer,
		}
		e.order = append(e.order, seed.ID)
	}
	return e, nil
}

// Start transitions waiting -> playing, stamps the first question and starts
// the countdown. It reports false (and does nothing) if the game already
// started.
func (e *Engine) Start() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != domain.StatusWaiting {
		return false
	}
	e.status = domain.StatusPlaying
	e.currentIndex = 0
	e.questions[0].ShownAt = e.clock.Now()
	e.startQuestionTimerLocked()
	e.log.Info().Str("mode", string(e.mode)).Int("questions", len(e.questions)).Msg("game started")
	e.broadcastLocked(Event{Type: EventGameStarted})
	return true
}

// SubmitAnswer records one player's answer for the current question. It
// reports false when the submission is rejected: game not playing, player
// unknown, player already answered this cycle, or another answer/advance is
// mid-flight. Rejections are benign races, not errors.
func (e *Engine) SubmitAnswer(playerID string, answerIndex int, answeredAt time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != domain.StatusPlaying || e.answering || e.advancing {
		return false
	}
	player, ok := e.players[playerID]
	if !ok || player.HasAnswered {
		return false
	}

	e.answering = true
	defer func() { e.answering = false }()

	question := &e.questions[e.currentIndex]
	responseTime := answeredAt.Sub(question.ShownAt)

	player.HasAnswered = true
	player.SelectedAnswer = answerIndex
	player.AnswerTimestamp = answeredAt

	if question.CorrectIndex == domain.CorrectIndexUnknown {
		// Correctness is indeterminate until the backend reveals the answer;
		// scoring is deferred to RevealCorrectIndex or question completion.
		e.pendingMs[playerID] = responseTime
	} else {
		e.settleAnswerLocked(player, question.CorrectIndex, responseTime)
	}

	e.log.Debug().
		Str("player_id", playerID).
		Int("answer", answerIndex).
		Dur("response_time", responseTime).
		Msg("answer accepted")
	e.broadcastLocked(Event{Type: EventAnswerProcessed, PlayerID: playerID})

	if e.allAnsweredLocked() {
		e.completeQuestionLocked()
	}
	return true
}

// settleAnswerLocked applies score and (individual) heart effects for a
// player whose correctness is now known.
func (e *Engine) settleAnswerLocked(player *domain.PlayerState, correctIndex int, responseTime time.Duration) {
	player.IsCorrect = player.SelectedAnswer == correctIndex
	if player.IsCorrect {
		player.Score += answerPoints(responseTime)
		return
	}
	// Team hearts are shared and evaluated once per question at completion.
	if e.mode != domain.ModeCollaborative && player.Hearts > 0 {
		player.Hearts--
	}
}

// HandleTimeout treats every player who has not answered as incorrect and
// runs the question-completion cycle. It is a no-op unless the game is
// playing and no answer or advance is mid-flight.
func (e *Engine) HandleTimeout() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.timeoutLocked()
}

func (e *Engine) timeoutFired(gen int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.timerGen {
		return
	}
	e.timeoutLocked()
}

func (e *Engine) timeoutLocked() {
	if e.status != domain.StatusPlaying || e.answering || e.advancing {
		return
	}
	for _, id := range e.order {
		player := e.players[id]
		if player.HasAnswered {
			continue
		}
		player.HasAnswered = true
		player.SelectedAnswer = domain.NoAnswer
		player.IsCorrect = false
		if e.mode != domain.ModeCollaborative && player.Hearts > 0 {
			player.Hearts--
		}
	}
	e.log.Debug().Int("question", e.currentIndex).Msg("question timed out")
	e.completeQuestionLocked()
}

// RevealCorrectIndex back-fills the correct answer for a question once the
// backend discloses it, settling any answers that were waiting on it. A
// question whose correct index is already known is left untouched.
func (e *Engine) RevealCorrectIndex(questionIndex, correctIndex int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if questionIndex < 0 || questionIndex >= len(e.questions) {
		return domain.ErrQuestionNotFound
	}
	question := &e.questions[questionIndex]
	if question.CorrectIndex != domain.CorrectIndexUnknown {
		return nil
	}
	question.CorrectIndex = correctIndex

	if questionIndex != e.currentIndex || e.status != domain.StatusPlaying {
		return nil
	}
	for id, responseTime := range e.pendingMs {
		player := e.players[id]
		e.settleAnswerLocked(player, correctIndex, responseTime)
		delete(e.pendingMs, id)
		e.broadcastLocked(Event{Type: EventStateChanged, PlayerID: id})
	}
	return nil
}

// ApplyBackendUpdate is the sanctioned entry point for the reconciliation
// layer: it overwrites a player's score and hearts with authoritative backend
// values. Hearts are clamped to [0, maxHearts].
func (e *Engine) ApplyBackendUpdate(playerID string, score, hearts int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	player, ok := e.players[playerID]
	if !ok {
		return domain.ErrPlayerNotFound
	}
	if hearts < 0 {
		hearts = 0
	}
	if hearts > player.MaxHearts {
		hearts = player.MaxHearts
	}
	if player.Score == score && player.Hearts == hearts {
		return nil
	}
	player.Score = score
	player.Hearts = hearts
	e.broadcastLocked(Event{Type: EventStateChanged, PlayerID: playerID})
	return nil
}

func (e *Engine) allAnsweredLocked() bool {
	for _, player := range e.players {
		if !player.HasAnswered {
			return false
		}
	}
	return true
}

func (e *Engine) completeQuestionLocked() {
	e.stopQuestionTimerLocked()

	// Answers still pending a reveal settle as incorrect; the reveal missed
	// its window for this cycle.
	for id := range e.pendingMs {
		player := e.players[id]
		player.IsCorrect = false
		if e.mode != domain.ModeCollaborative && player.Hearts > 0 {
			player.Hearts--
		}
		delete(e.pendingMs, id)
	}

	if e.mode == domain.ModeCollaborative {
		anyCorrect := false
		for _, player := range e.players {
			if player.IsCorrect {
				anyCorrect = true
				break
			}
		}
		if !anyCorrect && e.teamHearts > 0 {
			e.teamHearts--
		}
	}

	if e.heartsDepletedLocked() || e.currentIndex == len(e.questions)-1 {
		e.finalizeLocked(e.heartsDepletedLocked())
		return
	}
	e.scheduleAdvanceLocked()
}

func (e *Engine) heartsDepletedLocked() bool {
	switch e.mode {
	case domain.ModeCollaborative:
		return e.teamHearts <= 0
	case domain.ModeCompetitive:
		for _, player := range e.players {
			if player.Hearts <= 0 {
				return true
			}
		}
		return false
	default:
		for _, player := range e.players {
			if player.Hearts > 0 {
				return false
			}
		}
		return true
	}
}

func (e *Engine) finalizeLocked(heartsOut bool) {
	e.status = domain.StatusFinished

	result := &domain.GameResult{
		SessionID:  e.id,
		Mode:       e.mode,
		FinishedAt: e.clock.Now(),
	}
	for _, id := range e.order {
		player := e.players[id]
		result.Players = append(result.Players, domain.PlayerResult{
			PlayerID: id,
			Name:     player.Name,
			Score:    player.Score,
			Hearts:   player.Hearts,
		})
	}

	switch e.mode {
	case domain.ModeCompetitive:
		result.Outcome = domain.OutcomeWin
		result.WinnerID = e.competitiveWinnerLocked(heartsOut)
	default:
		if heartsOut {
			result.Outcome = domain.OutcomeFail
		} else {
			result.Outcome = domain.OutcomeWin
		}
	}

	e.result = result
	e.log.Info().
		Str("outcome", string(result.Outcome)).
		Str("winner", result.WinnerID).
		Msg("game finished")

	if !e.gameOverSent {
		e.gameOverSent = true
		e.broadcastLocked(Event{Type: EventGameOver, Result: result})
	}
}

// competitiveWinnerLocked picks the last player alive when hearts ran out,
// falling back to highest score (ties resolved by seed order).
func (e *Engine) competitiveWinnerLocked(heartsOut bool) string {
	if heartsOut {
		alive := make([]string, 0, len(e.order))
		for _, id := range e.order {
			if e.players[id].Hearts > 0 {
				alive = append(alive, id)
			}
		}
		if len(alive) == 1 {
			return alive[0]
		}
		// Zero or several alive: fall through to score comparison among all.
	}
	winner := ""
	best := -1
	for _, id := range e.order {
		if heartsOut && e.players[id].Hearts <= 0 && e.anyAliveLocked() {
			continue
		}
		if e.players[id].Score > best {
			best = e.players[id].Score
			winner = id
		}
	}
	return winner
}

func (e *Engine) anyAliveLocked() bool {
	for _, player := range e.players {
		if player.Hearts > 0 {
			return true
		}
	}
	return false
}

func (e *Engine) scheduleAdvanceLocked() {
	if e.advancing {
		return
	}
	e.advancing = true
	e.clock.AfterFunc(e.advanceDelay, e.advance)
}

// advance moves to the next question: transient flags reset, new question
// stamped, countdown restarted.
func (e *Engine) advance() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.advancing = false
	if e.status != domain.StatusPlaying {
		return
	}
	e.currentIndex++
	for _, player := range e.players {
		player.HasAnswered = false
		player.SelectedAnswer = domain.NoAnswer
		player.IsCorrect = false
		player.AnswerTimestamp = time.Time{}
	}
	e.questions[e.currentIndex].ShownAt = e.clock.Now()
	e.startQuestionTimerLocked()
	e.broadcastLocked(Event{Type: EventQuestionAdvanced})
}

func (e *Engine) startQuestionTimerLocked() {
	e.timerGen++
	if e.questionTime <= 0 {
		return
	}
	gen := e.timerGen
	e.questionTimer = e.clock.AfterFunc(e.questionTime, func() { e.timeoutFired(gen) })
}

func (e *Engine) stopQuestionTimerLocked() {
	e.timerGen++
	if e.questionTimer != nil {
		e.questionTimer.Stop()
		e.questionTimer = nil
	}
}

// Subscribe returns a channel of engine events plus a cancel function the
// caller must invoke to avoid leaks. Slow subscribers lose the oldest event
// rather than blocking the engine.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)

	e.mu.Lock()
	e.subscribers[ch] = struct{}{}
	e.mu.Unlock()

	cancel := func() {
		e.mu.Lock()
		if _, ok := e.subscribers[ch]; ok {
			delete(e.subscribers, ch)
			close(ch)
		}
		e.mu.Unlock()
	}
	return ch, cancel
}

func (e *Engine) broadcastLocked(ev Event) {
	ev.Snapshot = e.snapshotLocked()
	for ch := range e.subscribers {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

// Snapshot returns a copy of the externally visible state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID:     e.id,
		Mode:          e.mode,
		Status:        e.status,
		CurrentIndex:  e.currentIndex,
		TeamHearts:    e.teamHearts,
		MaxTeamHearts: e.maxTeamHearts,
	}
	if e.currentIndex >= 0 && e.currentIndex < len(e.questions) {
		question := e.questions[e.currentIndex]
		question.Options = append([]domain.Option(nil), question.Options...)
		snap.Question = question
	}
	for _, id := range e.order {
		snap.Players = append(snap.Players, *e.players[id])
	}
	return snap
}

// Result returns the final result once the session has finished.
func (e *Engine) Result() (domain.GameResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.result == nil {
		return domain.GameResult{}, false
	}
	return *e.result, true
}

// answerPoints maps response time to the tiered score for a correct answer.
func answerPoints(responseTime time.Duration) int {
	switch {
	case responseTime <= fastAnswerWindow:
		return fastAnswerPoints
	case responseTime <= mediumAnswerWindow:
		return mediumAnswerPoints
	default:
		return 0
	}
}
