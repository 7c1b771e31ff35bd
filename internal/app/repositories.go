package app

import (
	"context"

	"quiz-session-service/internal/domain"
)

// SessionKey identifies one player's progress through one rule set.
type SessionKey struct {
	Player  string
	RuleSet string
}

// PlaylistFunc builds the ordered question-id sequence for a new game.
// Session stores call it while holding the key's critical section so a
// racing start cannot half-apply two playlists.
type PlaylistFunc func(ctx context.Context) ([]int, error)

// SessionRepository abstracts how session progress is stored (in-memory,
// Redis, etc). Implementations must serialize operations on the same key
// against each other; operations on distinct keys must not block.
type SessionRepository interface {
	// GetOrStart returns the session for key, creating a fresh one (and
	// abandoning any other in-progress session of the same player) when
	// none is in progress or fresh is true. The second result reports
	// whether a new game was started.
	GetOrStart(ctx context.Context, key SessionKey, fresh bool, build PlaylistFunc) (domain.Session, bool, error)
	Get(ctx context.Context, key SessionKey) (domain.Session, bool, error)
	// AdvanceIfCurrent moves the cursor past questionID only if it is the
	// current playlist entry. Stale or duplicate submissions return false
	// and change nothing.
	AdvanceIfCurrent(ctx context.Context, key SessionKey, questionID int) (bool, error)
	// ApplyAnswer adds the score delta, bumps the correct counter when the
	// event is correct, and appends the event to the session history.
	ApplyAnswer(ctx context.Context, key SessionKey, event domain.AnswerEvent, delta int) (domain.Session, error)
	// Complete moves an in-progress session to Completed, adding bonus to
	// the final score. Completing a terminal session is a no-op.
	Complete(ctx context.Context, key SessionKey, bonus int) (domain.Session, error)
	// Cancel marks the session Abandoned; idempotent on terminal sessions.
	Cancel(ctx context.Context, key SessionKey) error
}

// CandidateFilter narrows the question pool for auto-mode selection.
// Published-only is implied; empty theme/country/keyword sets mean no
// filter.
type CandidateFilter struct {
	Difficulty int
	ThemeIDs   []int
	CountryIDs []int
	KeywordIDs []int
}

// ContentRepository answers question queries against the authoring store.
type ContentRepository interface {
	FindCandidates(ctx context.Context, filter CandidateFilter) ([]int, error)
	// FilterPublished keeps only published ids, preserving input order.
	FilterPublished(ctx context.Context, ids []int) ([]int, error)
	// QuestionKeywords maps each id to its keyword tags; untagged
	// questions may be absent from the result.
	QuestionKeywords(ctx context.Context, ids []int) (map[int][]int, error)
	GetQuestion(ctx context.Context, id int) (domain.Question, error)
}

// HistoryRepository reports which questions a player has already seen.
type HistoryRepository interface {
	SeenQuestionIDs(ctx context.Context, player string) (map[int]struct{}, error)
}

// RuleSetRepository loads validated rule set configurations.
type RuleSetRepository interface {
	GetActiveRuleSet(ctx context.Context, slug string) (domain.RuleSetConfig, error)
}

// StatsSink receives answer events for aggregate bookkeeping. Writes are
// at-least-once: a client retry may count twice, which the stats model
// tolerates.
type StatsSink interface {
	RecordQuestionAnswered(ctx context.Context, questionID int, correct bool, answerIndex int) error
	RecordUserQuestionAnswered(ctx context.Context, player string, questionID int, correct bool, selected string) error
}
