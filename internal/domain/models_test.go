package domain

import (
	"errors"
	"testing"
)

func validRuleSet() RuleSetConfig {
	return RuleSetConfig{
		Slug:                "daily",
		Active:              true,
		SelectionMode:       SelectionAuto,
		AllowedDifficulties: []int{1, 2, 3},
		Quotas:              map[int]int{1: 2, 2: 1},
		Scoring:             ScoringConfig{BasePoints: 10, BonusMode: BonusAdd, DifficultyBonus: map[int]float64{3: 10}},
	}
}

func TestRuleSetValidate(t *testing.T) {
	if err := validRuleSet().Validate(); err != nil {
		t.Fatalf("valid rule set rejected: %v", err)
	}

	cases := map[string]func(*RuleSetConfig){
		"difficulty out of range": func(c *RuleSetConfig) { c.AllowedDifficulties = []int{0} },
		"quota out of range":      func(c *RuleSetConfig) { c.Quotas = map[int]int{7: 1} },
		"negative quota":          func(c *RuleSetConfig) { c.Quotas = map[int]int{1: -1} },
		"unknown selection mode":  func(c *RuleSetConfig) { c.SelectionMode = "random" },
		"unknown bonus mode":      func(c *RuleSetConfig) { c.Scoring.BonusMode = "double" },
		"negative base points":    func(c *RuleSetConfig) { c.Scoring.BasePoints = -1 },
		"combo without step": func(c *RuleSetConfig) {
			c.Scoring.ComboEnabled = true
			c.Scoring.ComboStep = 0
		},
		"manual without questions": func(c *RuleSetConfig) {
			c.SelectionMode = SelectionManual
			c.QuestionIDs = nil
		},
	}
	for name, mutate := range cases {
		cfg := validRuleSet()
		mutate(&cfg)
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidRuleSet) {
			t.Errorf("%s: expected ErrInvalidRuleSet, got %v", name, err)
		}
	}
}

func TestSessionStatusTerminal(t *testing.T) {
	if StatusInProgress.Terminal() || StatusNotStarted.Terminal() {
		t.Fatalf("active statuses must not be terminal")
	}
	if !StatusCompleted.Terminal() || !StatusAbandoned.Terminal() {
		t.Fatalf("completed and abandoned are terminal")
	}
}
