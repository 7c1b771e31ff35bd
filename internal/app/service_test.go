package app_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/memory"
)

type fixture struct {
	service  *app.Service
	sessions *memory.SessionStore
	stats    *memory.StatsRecorder
}

func newFixture(questions []domain.Question, ruleSets map[string]domain.RuleSetConfig) fixture {
	sessions := memory.NewSessionStore()
	content := memory.NewContentStore(questions...)
	recorder := memory.NewStatsRecorder()
	repo := memory.NewRuleSetRepository(memory.NewStaticRuleSetLoader(ruleSets), 5*time.Minute)
	generator := app.NewPlaylistGeneratorWithRand(content, rand.New(rand.NewSource(11)))
	service := app.NewServiceWithGenerator(sessions, content, recorder, repo, recorder, generator)
	return fixture{service: service, sessions: sessions, stats: recorder}
}

func twoQuestionSetup() fixture {
	questions := []domain.Question{
		{ID: 1, Text: "first", Answers: []string{"a", "b"}, CorrectAnswer: "1", DifficultyLevel: 1, Published: true},
		{ID: 2, Text: "second", Answers: []string{"a", "b"}, CorrectAnswer: "2", DifficultyLevel: 1, Published: true},
	}
	ruleSets := map[string]domain.RuleSetConfig{
		"basic": {
			Slug:          "basic",
			Active:        true,
			SelectionMode: domain.SelectionManual,
			QuestionIDs:   []int{1, 2},
			Scoring:       domain.ScoringConfig{BasePoints: 10, BonusMode: domain.BonusNone},
		},
	}
	return newFixture(questions, ruleSets)
}

func TestTwoQuestionSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := twoQuestionSetup()

	progress, err := f.service.StartOrResume(ctx, "alice", "basic", false)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if progress.Question == nil {
		t.Fatalf("expected a question, got %+v", progress)
	}
	if progress.Question.Total != 2 || progress.Question.Position != 1 {
		t.Fatalf("expected position 1/2, got %d/%d", progress.Question.Position, progress.Question.Total)
	}

	// Answer the first question correctly.
	first := progress.Question.Question
	correctToken := correctAnswerFor(first.ID)
	result, err := f.service.SubmitAnswer(ctx, "alice", "basic", first.ID, correctToken)
	if err != nil {
		t.Fatalf("submit first: %v", err)
	}
	if !result.Correct || result.Awarded != 10 || result.TotalScore != 10 {
		t.Fatalf("expected +10, got %+v", result)
	}
	if result.AnsweredCount != 1 || result.TotalQuestions != 2 {
		t.Fatalf("expected 1/2 answered, got %+v", result)
	}

	// Second answer times out (empty token): incorrect, not an error.
	progress, err = f.service.StartOrResume(ctx, "alice", "basic", false)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	second := progress.Question.Question
	result, err = f.service.SubmitAnswer(ctx, "alice", "basic", second.ID, "")
	if err != nil {
		t.Fatalf("submit second: %v", err)
	}
	if result.Correct || result.Awarded != 0 || result.TotalScore != 10 {
		t.Fatalf("expected no points for timeout, got %+v", result)
	}

	// The next call detects the exhausted cursor and completes the session.
	progress, err = f.service.StartOrResume(ctx, "alice", "basic", false)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if progress.Summary == nil {
		t.Fatalf("expected summary, got %+v", progress)
	}
	summary := progress.Summary
	if summary.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", summary.Status)
	}
	if summary.TotalScore != 10 || summary.CorrectCount != 1 || summary.TotalQuestions != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.Perfect {
		t.Fatalf("one miss must not be perfect: %+v", summary)
	}
}

func TestDuplicateSubmitIsNoOp(t *testing.T) {
	ctx := context.Background()
	f := twoQuestionSetup()

	progress, err := f.service.StartOrResume(ctx, "alice", "basic", false)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	id := progress.Question.Question.ID
	token := correctAnswerFor(id)

	first, err := f.service.SubmitAnswer(ctx, "alice", "basic", id, token)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if first.Awarded != 10 || first.AnsweredCount != 1 {
		t.Fatalf("unexpected first result: %+v", first)
	}

	// Client retry: same question again, cursor already past it.
	second, err := f.service.SubmitAnswer(ctx, "alice", "basic", id, token)
	if err != nil {
		t.Fatalf("duplicate submit: %v", err)
	}
	if second.Awarded != 0 {
		t.Fatalf("duplicate must not score: %+v", second)
	}
	if second.TotalScore != 10 || second.AnsweredCount != 1 {
		t.Fatalf("duplicate must not advance or re-score: %+v", second)
	}
}

func TestStartingOtherRuleSetAbandonsCurrent(t *testing.T) {
	ctx := context.Background()
	questions := []domain.Question{
		{ID: 1, Answers: []string{"a"}, CorrectAnswer: "1", DifficultyLevel: 1, Published: true},
		{ID: 2, Answers: []string{"a"}, CorrectAnswer: "1", DifficultyLevel: 1, Published: true},
	}
	ruleSets := map[string]domain.RuleSetConfig{
		"morning": manualRuleSet("morning", []int{1, 2}),
		"evening": manualRuleSet("evening", []int{1, 2}),
	}
	f := newFixture(questions, ruleSets)

	if _, err := f.service.StartOrResume(ctx, "alice", "morning", false); err != nil {
		t.Fatalf("start morning: %v", err)
	}
	if _, err := f.service.StartOrResume(ctx, "alice", "evening", false); err != nil {
		t.Fatalf("start evening: %v", err)
	}

	morning, ok, err := f.sessions.Get(ctx, app.SessionKey{Player: "alice", RuleSet: "morning"})
	if err != nil || !ok {
		t.Fatalf("get morning session: ok=%v err=%v", ok, err)
	}
	if morning.Status != domain.StatusAbandoned {
		t.Fatalf("expected morning abandoned, got %s", morning.Status)
	}
	evening, ok, err := f.sessions.Get(ctx, app.SessionKey{Player: "alice", RuleSet: "evening"})
	if err != nil || !ok {
		t.Fatalf("get evening session: ok=%v err=%v", ok, err)
	}
	if evening.Status != domain.StatusInProgress {
		t.Fatalf("expected evening in progress, got %s", evening.Status)
	}
}

func TestPerfectBonusAppliedAtCompletion(t *testing.T) {
	ctx := context.Background()
	questions := []domain.Question{
		{ID: 1, Answers: []string{"a"}, CorrectAnswer: "1", DifficultyLevel: 1, Published: true},
	}
	cfg := manualRuleSet("solo", []int{1})
	cfg.Scoring.PerfectBonus = 25
	f := newFixture(questions, map[string]domain.RuleSetConfig{"solo": cfg})

	if _, err := f.service.StartOrResume(ctx, "alice", "solo", false); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.service.SubmitAnswer(ctx, "alice", "solo", 1, "1"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	progress, err := f.service.StartOrResume(ctx, "alice", "solo", false)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if progress.Summary == nil || !progress.Summary.Perfect {
		t.Fatalf("expected perfect summary, got %+v", progress)
	}
	if progress.Summary.TotalScore != 35 {
		t.Fatalf("expected 10 + perfect 25 = 35, got %d", progress.Summary.TotalScore)
	}
}

func TestMinCorrectToWinFlagsOutcome(t *testing.T) {
	ctx := context.Background()
	questions := []domain.Question{
		{ID: 1, Answers: []string{"a"}, CorrectAnswer: "1", DifficultyLevel: 1, Published: true},
		{ID: 2, Answers: []string{"a"}, CorrectAnswer: "1", DifficultyLevel: 1, Published: true},
	}
	cfg := manualRuleSet("strict", []int{1, 2})
	cfg.Scoring.MinCorrectToWin = 2
	f := newFixture(questions, map[string]domain.RuleSetConfig{"strict": cfg})

	progress, _ := f.service.StartOrResume(ctx, "alice", "strict", false)
	firstID := progress.Question.Question.ID
	if _, err := f.service.SubmitAnswer(ctx, "alice", "strict", firstID, "1"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	progress, _ = f.service.StartOrResume(ctx, "alice", "strict", false)
	if _, err := f.service.SubmitAnswer(ctx, "alice", "strict", progress.Question.Question.ID, ""); err != nil {
		t.Fatalf("submit: %v", err)
	}
	progress, err := f.service.StartOrResume(ctx, "alice", "strict", false)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if progress.Summary.Won {
		t.Fatalf("expected failed outcome, got %+v", progress.Summary)
	}
	// The flag never alters the numeric score.
	if progress.Summary.TotalScore != 10 {
		t.Fatalf("expected score 10, got %d", progress.Summary.TotalScore)
	}
}

func TestUnknownQuestionIsValidationError(t *testing.T) {
	ctx := context.Background()
	f := twoQuestionSetup()

	if _, err := f.service.StartOrResume(ctx, "alice", "basic", false); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, err := f.service.SubmitAnswer(ctx, "alice", "basic", 999, "1")
	if !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected ErrQuestionNotFound, got %v", err)
	}
}

func TestUnknownRuleSet(t *testing.T) {
	ctx := context.Background()
	f := twoQuestionSetup()

	_, err := f.service.StartOrResume(ctx, "alice", "nope", false)
	if !errors.Is(err, domain.ErrRuleSetNotFound) {
		t.Fatalf("expected ErrRuleSetNotFound, got %v", err)
	}
}

func TestSubmitWithoutSession(t *testing.T) {
	ctx := context.Background()
	f := twoQuestionSetup()

	_, err := f.service.SubmitAnswer(ctx, "alice", "basic", 1, "1")
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestEmptyPoolCompletesImmediately(t *testing.T) {
	ctx := context.Background()
	ruleSets := map[string]domain.RuleSetConfig{
		"empty": {
			Slug:                "empty",
			Active:              true,
			SelectionMode:       domain.SelectionAuto,
			AllowedDifficulties: []int{5},
			Quotas:              map[int]int{5: 3},
			Scoring:             domain.ScoringConfig{BasePoints: 10, BonusMode: domain.BonusNone, PerfectBonus: 25},
		},
	}
	f := newFixture(nil, ruleSets)

	progress, err := f.service.StartOrResume(ctx, "alice", "empty", false)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if progress.Summary == nil {
		t.Fatalf("expected immediate summary for empty playlist, got %+v", progress)
	}
	if progress.Summary.Status != domain.StatusCompleted || progress.Summary.TotalScore != 0 || progress.Summary.Perfect {
		t.Fatalf("expected zero-length completed game, got %+v", progress.Summary)
	}
}

func TestFreshGameReplacesCompletedSession(t *testing.T) {
	ctx := context.Background()
	f := twoQuestionSetup()

	if _, err := f.service.StartOrResume(ctx, "alice", "basic", false); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.service.SubmitAnswer(ctx, "alice", "basic", mustCurrentID(ctx, t, f), "1"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := f.service.Cancel(ctx, "alice", "basic"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// Without the fresh signal the terminal session is reported as-is.
	progress, err := f.service.StartOrResume(ctx, "alice", "basic", false)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if progress.Summary == nil || progress.Summary.Status != domain.StatusAbandoned {
		t.Fatalf("expected abandoned summary, got %+v", progress)
	}

	// The fresh signal starts over with zeroed progress.
	progress, err = f.service.StartOrResume(ctx, "alice", "basic", true)
	if err != nil {
		t.Fatalf("fresh start: %v", err)
	}
	if progress.Question == nil || progress.Question.Position != 1 || progress.Question.Score != 0 {
		t.Fatalf("expected a fresh first question, got %+v", progress)
	}
}

func TestStatsEmittedOnSubmit(t *testing.T) {
	ctx := context.Background()
	f := twoQuestionSetup()

	progress, _ := f.service.StartOrResume(ctx, "alice", "basic", false)
	id := progress.Question.Question.ID
	if _, err := f.service.SubmitAnswer(ctx, "alice", "basic", id, "1"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if f.stats.TimesAnswered(id) != 1 {
		t.Fatalf("expected 1 recorded answer for %d, got %d", id, f.stats.TimesAnswered(id))
	}
	seen, err := f.stats.SeenQuestionIDs(ctx, "alice")
	if err != nil {
		t.Fatalf("seen: %v", err)
	}
	if _, ok := seen[id]; !ok {
		t.Fatalf("expected %d in alice's history, got %v", id, seen)
	}
}

func manualRuleSet(slug string, ids []int) domain.RuleSetConfig {
	return domain.RuleSetConfig{
		Slug:          slug,
		Active:        true,
		SelectionMode: domain.SelectionManual,
		QuestionIDs:   ids,
		Scoring:       domain.ScoringConfig{BasePoints: 10, BonusMode: domain.BonusNone},
	}
}

// correctAnswerFor matches the fixtures above: question 1 answers "1",
// question 2 answers "2".
func correctAnswerFor(id int) string {
	if id == 2 {
		return "2"
	}
	return "1"
}

func mustCurrentID(ctx context.Context, t *testing.T, f fixture) int {
	t.Helper()
	progress, err := f.service.StartOrResume(ctx, "alice", "basic", false)
	if err != nil {
		t.Fatalf("current question: %v", err)
	}
	if progress.Question == nil {
		t.Fatalf("expected question, got %+v", progress)
	}
	return progress.Question.Question.ID
}
