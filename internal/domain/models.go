package domain

import "time"

// GameMode selects the rule set for hearts and question completion.
type GameMode string

const (
	ModeSolo          GameMode = "solo"
	ModeCompetitive   GameMode = "competitive"
	ModeCollaborative GameMode = "collaborative"
)

// SessionStatus is the lifecycle of one played game instance.
type SessionStatus string

const (
	StatusWaiting  SessionStatus = "waiting"
	StatusPlaying  SessionStatus = "playing"
	StatusFinished SessionStatus = "finished"
)

// PlayerSlot is a stable local display slot. Backend identities are mapped
// onto slots once per session and never reassigned.
type PlayerSlot string

const (
	SlotPlayer1 PlayerSlot = "player1"
	SlotPlayer2 PlayerSlot = "player2"
	SlotTeam    PlayerSlot = "team"
)

// CorrectIndexUnknown marks a question whose correct answer has not been
// revealed by the backend yet.
const CorrectIndexUnknown = -1

// NoAnswer marks a player who has not selected an option this cycle.
const NoAnswer = -1

// DefaultHearts is the starting life count per player (or per team).
const DefaultHearts = 3

// Option is one selectable answer. Index is the local position, BackendID the
// opaque identifier the remote API expects on submission.
type Option struct {
	Index     int    `json:"index"`
	BackendID string `json:"backendId"`
	Text      string `json:"text"`
}

// Question is one quiz prompt. ShownAt is stamped exactly once, when the
// question becomes current.
type Question struct {
	ID           string    `json:"id"`
	Prompt       string    `json:"prompt"`
	Options      []Option  `json:"options"`
	CorrectIndex int       `json:"correctIndex"`
	ShownAt      time.Time `json:"shownAt"`
}

// PlayerState is one participant's mutable game record. It is owned
// exclusively by the engine; other layers request updates through the
// engine's entry points.
type PlayerState struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Slot            PlayerSlot `json:"slot"`
	Score           int        `json:"score"`
	Hearts          int        `json:"hearts"`
	MaxHearts       int        `json:"maxHearts"`
	HasAnswered     bool       `json:"hasAnswered"`
	SelectedAnswer  int        `json:"selectedAnswer"`
	IsCorrect       bool       `json:"isCorrect"`
	AnswerTimestamp time.Time  `json:"answerTimestamp"`
}

// GameOutcome is the terminal result of a session.
type GameOutcome string

const (
	OutcomeWin  GameOutcome = "win"
	OutcomeFail GameOutcome = "fail"
)

// PlayerResult is one participant's final line in a GameResult.
type PlayerResult struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
	Hearts   int    `json:"hearts"`
}

// GameResult summarizes a finished session.
type GameResult struct {
	SessionID  string         `json:"sessionId"`
	Mode       GameMode       `json:"mode"`
	Outcome    GameOutcome    `json:"outcome"`
	WinnerID   string         `json:"winnerId,omitempty"`
	Players    []PlayerResult `json:"players"`
	FinishedAt time.Time      `json:"finishedAt"`
}

// BackendPlayer is the authoritative participant record as reported by the
// remote session API.
type BackendPlayer struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Score       int    `json:"score"`
	Hearts      int    `json:"hearts"`
	IsHost      bool   `json:"isHost"`
	HasAnswered bool   `json:"hasAnswered"`
}

// PlayerSnapshot is one authoritative backend view of all participants,
// tagged with a monotonically increasing sequence assigned at receive time.
// Reconciliation drops any snapshot whose sequence is at or below the last
// applied one.
type PlayerSnapshot struct {
	Seq     uint64
	Players []BackendPlayer
}
