package domain

import "errors"

var (
	// ErrNoPlayers is returned when an engine is constructed without players.
	ErrNoPlayers = errors.New("game requires at least one player")
	// ErrNoQuestions is returned when an engine is constructed with an empty question set.
	ErrNoQuestions = errors.New("game requires at least one question")
	// ErrPlayerNotFound is returned when an update names an unknown local player.
	ErrPlayerNotFound = errors.New("player not found in game")
	// ErrQuestionNotFound indicates the requested question index does not exist.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrMappingUnresolved indicates fewer than two backend players were visible.
	ErrMappingUnresolved = errors.New("player mapping not resolvable yet")
	// ErrGameNotFound is returned when a registry lookup misses.
	ErrGameNotFound = errors.New("game session not found")
)
