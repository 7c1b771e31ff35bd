package domain

import "errors"

var (
	// ErrRuleSetNotFound is returned when no active rule set matches the slug.
	ErrRuleSetNotFound = errors.New("rule set not found")
	// ErrInvalidRuleSet indicates a rule set failed validation at load time.
	ErrInvalidRuleSet = errors.New("invalid rule set")
	// ErrSessionNotFound is returned when a player acts before starting a game.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
)
