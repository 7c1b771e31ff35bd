package domain

import (
	"fmt"
	"time"
)

// SessionStatus tracks where a quiz session is in its lifecycle.
// Completed and Abandoned are terminal; a new game always allocates a
// fresh Session value instead of reopening one.
type SessionStatus string

const (
	StatusNotStarted SessionStatus = "not_started"
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
	StatusAbandoned  SessionStatus = "abandoned"
)

// Terminal reports whether the status can never be left again.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

// SelectionMode decides how a rule set picks its questions.
type SelectionMode string

const (
	// SelectionAuto fills per-difficulty quotas from the question pool.
	SelectionAuto SelectionMode = "auto"
	// SelectionManual plays a curated question list.
	SelectionManual SelectionMode = "manual"
)

// BonusMode selects how the difficulty bonus is applied to the base points.
type BonusMode string

const (
	BonusNone BonusMode = "none"
	BonusAdd  BonusMode = "add"
	BonusMult BonusMode = "mult"
)

// Difficulty levels follow the authoring scale 1 (easy) to 5 (hard).
const (
	MinDifficulty = 1
	MaxDifficulty = 5
)

// ScoringConfig holds the per-answer and per-session scoring rules of a
// rule set.
type ScoringConfig struct {
	BasePoints int       `json:"basePoints"`
	BonusMode  BonusMode `json:"bonusMode"`
	// DifficultyBonus is flat points in add mode and a multiplier
	// coefficient in mult mode, keyed by difficulty level.
	DifficultyBonus  map[int]float64 `json:"difficultyBonus,omitempty"`
	ComboEnabled     bool            `json:"comboEnabled"`
	ComboStep        int             `json:"comboStep,omitempty"`
	ComboBonusPoints int             `json:"comboBonusPoints,omitempty"`
	PerfectBonus     int             `json:"perfectBonus,omitempty"`
	MinCorrectToWin  int             `json:"minCorrectToWin,omitempty"`
}

// RuleSetConfig is the immutable description of one quiz style: which
// questions are eligible, how many per difficulty, and how answers
// score. It is validated once when loaded, never at use time.
type RuleSetConfig struct {
	Slug          string        `json:"slug"`
	Name          string        `json:"name"`
	Active        bool          `json:"active"`
	TimerSeconds  int           `json:"timerSeconds,omitempty"`
	SelectionMode SelectionMode `json:"selectionMode"`
	// AllowedDifficulties and Quotas drive auto mode.
	AllowedDifficulties []int       `json:"allowedDifficulties,omitempty"`
	Quotas              map[int]int `json:"quotas,omitempty"`
	// QuestionIDs is the curated list for manual mode.
	QuestionIDs []int `json:"questionIds,omitempty"`
	ThemeIDs    []int `json:"themeIds,omitempty"`
	CountryIDs  []int `json:"countryIds,omitempty"`
	// KeywordIDs narrows the auto-mode pool to questions tagged with at
	// least one of these keywords. PreventDuplicateKeywords additionally
	// forbids two playlist questions from sharing any keyword.
	KeywordIDs               []int         `json:"keywordIds,omitempty"`
	PreventDuplicateKeywords bool          `json:"preventDuplicateKeywords,omitempty"`
	Scoring                  ScoringConfig `json:"scoring"`
}

// Validate rejects malformed rule sets at load time.
func (c RuleSetConfig) Validate() error {
	if c.Slug == "" {
		return fmt.Errorf("%w: empty slug", ErrInvalidRuleSet)
	}
	switch c.SelectionMode {
	case SelectionAuto:
		if len(c.AllowedDifficulties) == 0 {
			return fmt.Errorf("%w: %s: auto mode without allowed difficulties", ErrInvalidRuleSet, c.Slug)
		}
		for _, d := range c.AllowedDifficulties {
			if d < MinDifficulty || d > MaxDifficulty {
				return fmt.Errorf("%w: %s: difficulty %d out of range", ErrInvalidRuleSet, c.Slug, d)
			}
		}
		for d, q := range c.Quotas {
			if d < MinDifficulty || d > MaxDifficulty {
				return fmt.Errorf("%w: %s: quota difficulty %d out of range", ErrInvalidRuleSet, c.Slug, d)
			}
			if q < 0 {
				return fmt.Errorf("%w: %s: negative quota %d for difficulty %d", ErrInvalidRuleSet, c.Slug, q, d)
			}
		}
	case SelectionManual:
		if len(c.QuestionIDs) == 0 {
			return fmt.Errorf("%w: %s: manual mode without question ids", ErrInvalidRuleSet, c.Slug)
		}
	default:
		return fmt.Errorf("%w: %s: unknown selection mode %q", ErrInvalidRuleSet, c.Slug, c.SelectionMode)
	}
	s := c.Scoring
	switch s.BonusMode {
	case BonusNone, BonusAdd, BonusMult:
	default:
		return fmt.Errorf("%w: %s: unknown bonus mode %q", ErrInvalidRuleSet, c.Slug, s.BonusMode)
	}
	if s.BasePoints < 0 {
		return fmt.Errorf("%w: %s: negative base points", ErrInvalidRuleSet, c.Slug)
	}
	if s.ComboEnabled && s.ComboStep <= 0 {
		return fmt.Errorf("%w: %s: combo enabled with step %d", ErrInvalidRuleSet, c.Slug, s.ComboStep)
	}
	return nil
}

// Question is the read-only view of an authored question. The authoring
// side owns the record; the engine only consumes it.
type Question struct {
	ID              int      `json:"id"`
	Text            string   `json:"text"`
	Answers         []string `json:"answers"`
	CorrectAnswer   string   `json:"correctAnswer"` // answer token, e.g. "1".."4"
	DetailedAnswer  string   `json:"detailedAnswer,omitempty"`
	Hint            string   `json:"hint,omitempty"`
	DifficultyLevel int      `json:"difficultyLevel"`
	Published       bool     `json:"published"`
	ThemeID         int      `json:"themeId,omitempty"`
	SpecificThemeID int      `json:"specificThemeId,omitempty"`
	CountryIDs      []int    `json:"countryIds,omitempty"`
	// KeywordIDs are the precise-topic tags used for pool filtering and
	// duplicate-keyword avoidance during playlist generation.
	KeywordIDs []int `json:"keywordIds,omitempty"`
}

// AnswerEvent records one submission within a session; the per-event
// correctness feeds combo scoring.
type AnswerEvent struct {
	QuestionID int    `json:"questionId"`
	Selected   string `json:"selected"`
	Correct    bool   `json:"correct"`
}

// Session is the per-(player, rule set) progress through one generated
// playlist. Invariant: 0 <= Cursor <= len(Playlist).
type Session struct {
	Player       string        `json:"player"`
	RuleSetSlug  string        `json:"ruleSetSlug"`
	Playlist     []int         `json:"playlist"`
	Cursor       int           `json:"cursor"`
	Score        int           `json:"score"`
	CorrectCount int           `json:"correctCount"`
	Status       SessionStatus `json:"status"`
	Answers      []AnswerEvent `json:"answers,omitempty"`
	StartedAt    time.Time     `json:"startedAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// Exhausted reports whether every playlist entry has been passed.
func (s Session) Exhausted() bool {
	return s.Cursor >= len(s.Playlist)
}

// QuestionView is the client-safe projection of a question: no correct
// answer, no explanation until the question has been answered.
type QuestionView struct {
	ID              int      `json:"id"`
	Text            string   `json:"text"`
	Answers         []string `json:"answers"`
	Hint            string   `json:"hint,omitempty"`
	DifficultyLevel int      `json:"difficultyLevel"`
}

// NextQuestion is the progress payload while a session still has
// questions left.
type NextQuestion struct {
	Question     QuestionView `json:"question"`
	Position     int          `json:"position"` // 1-based
	Total        int          `json:"total"`
	TimerSeconds int          `json:"timerSeconds,omitempty"`
	Score        int          `json:"score"`
}

// SessionSummary is returned once a session is over.
type SessionSummary struct {
	RuleSetSlug    string        `json:"ruleSetSlug"`
	Status         SessionStatus `json:"status"`
	TotalScore     int           `json:"totalScore"`
	CorrectCount   int           `json:"correctCount"`
	TotalQuestions int           `json:"totalQuestions"`
	Perfect        bool          `json:"perfect"`
	Won            bool          `json:"won"`
}

// Progress is the result of a start/next call: exactly one of Question
// or Summary is set.
type Progress struct {
	Question *NextQuestion   `json:"question,omitempty"`
	Summary  *SessionSummary `json:"summary,omitempty"`
}

// AnswerResult summarizes one submission for the client. A stale or
// duplicate submission reports Awarded=0 and leaves the counters at
// their current values.
type AnswerResult struct {
	QuestionID     int    `json:"questionId"`
	Correct        bool   `json:"correct"`
	Awarded        int    `json:"awarded"`
	TotalScore     int    `json:"totalScore"`
	AnsweredCount  int    `json:"answeredCount"`
	TotalQuestions int    `json:"totalQuestions"`
	CorrectAnswer  string `json:"correctAnswer"`
	DetailedAnswer string `json:"detailedAnswer,omitempty"`
}
