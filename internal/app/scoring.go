package app

import (
	"math"

	"quiz-session-service/internal/domain"
)

// Score computes the point delta for one answered question. It is pure:
// everything it needs is passed in, and history is never mutated. The
// history holds the session's previous answers in order; the answer
// being scored is described by correct and is not yet part of history.
// In mult mode a difficulty with no coefficient keeps the running total
// unchanged; treating the absent entry as zero would erase the base
// points.
func Score(cfg domain.ScoringConfig, question domain.Question, correct bool, history []domain.AnswerEvent) int {
	if !correct {
		return 0
	}

	total := cfg.BasePoints
	switch cfg.BonusMode {
	case domain.BonusAdd:
		total += int(cfg.DifficultyBonus[question.DifficultyLevel])
	case domain.BonusMult:
		if coef, ok := cfg.DifficultyBonus[question.DifficultyLevel]; ok {
			total = int(math.Floor(float64(total) * coef))
		}
	}

	if cfg.ComboEnabled && cfg.ComboStep > 0 {
		streak := 1 + trailingCorrect(history)
		total += (streak / cfg.ComboStep) * cfg.ComboBonusPoints
	}
	return total
}

// trailingCorrect counts the consecutive correct answers at the end of
// the history.
func trailingCorrect(history []domain.AnswerEvent) int {
	n := 0
	for i := len(history) - 1; i >= 0 && history[i].Correct; i-- {
		n++
	}
	return n
}

// FinalBonus is evaluated once at completion: a perfect run earns the
// perfect-quiz bonus. Zero-length games never count as perfect.
func FinalBonus(cfg domain.ScoringConfig, correctCount, totalQuestions int) int {
	if totalQuestions > 0 && correctCount == totalQuestions {
		return cfg.PerfectBonus
	}
	return 0
}

// Won reports the min-correct-to-win outcome; it flags the display
// result and never alters the numeric score.
func Won(cfg domain.ScoringConfig, correctCount int) bool {
	return cfg.MinCorrectToWin <= 0 || correctCount >= cfg.MinCorrectToWin
}
