package ws

import (
	"encoding/json"
	"errors"
)

// ErrNotConnected is returned by Send when no connection is live.
var ErrNotConnected = errors.New("websocket not connected")

// MessageKind separates in-game events from session/lobby lifecycle events.
type MessageKind string

const (
	// KindGame covers payloads carrying a "type" field: question, answer, complete.
	KindGame MessageKind = "game"
	// KindLobby covers payloads carrying an "event" field: player-joined,
	// player-ready, session-countdown, session-paused, session-start, ping.
	KindLobby MessageKind = "lobby"
)

// Game event types.
const (
	GameEventQuestion = "question"
	GameEventAnswer   = "answer"
	GameEventComplete = "complete"
)

// Lobby event names.
const (
	LobbyPlayerJoined     = "player-joined"
	LobbyPlayerReady      = "player-ready"
	LobbySessionCountdown = "session-countdown"
	LobbySessionPaused    = "session-paused"
	LobbySessionStart     = "session-start"
)

// Message is one classified inbound payload. Raw carries the full original
// JSON object for payload-specific decoding by subscribers.
type Message struct {
	Kind MessageKind
	Name string
	Raw  json.RawMessage
}

type envelope struct {
	Type  string `json:"type"`
	Event string `json:"event"`
}

// Classify inspects an inbound payload: a "type" field marks an in-game
// event, an "event" field a lobby event. Anything else is malformed and must
// be dropped by the caller.
func Classify(raw []byte) (Message, bool) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Message{}, false
	}
	switch {
	case env.Type != "":
		return Message{Kind: KindGame, Name: env.Type, Raw: raw}, true
	case env.Event != "":
		return Message{Kind: KindLobby, Name: env.Event, Raw: raw}, true
	default:
		return Message{}, false
	}
}
