package app

import (
	"context"
	"log"
	"strconv"

	"quiz-session-service/internal/domain"
)

// Service contains the quiz session use cases: starting or resuming a
// game, submitting answers, and cancelling. Requests are stateless;
// continuity lives entirely in the SessionRepository.
type Service struct {
	sessions  SessionRepository
	content   ContentRepository
	history   HistoryRepository
	ruleSets  RuleSetRepository
	stats     StatsSink
	playlists *PlaylistGenerator
}

func NewService(sessions SessionRepository, content ContentRepository, history HistoryRepository, ruleSets RuleSetRepository, stats StatsSink) *Service {
	return &Service{
		sessions:  sessions,
		content:   content,
		history:   history,
		ruleSets:  ruleSets,
		stats:     stats,
		playlists: NewPlaylistGenerator(content),
	}
}

// NewServiceWithGenerator injects a seeded playlist generator for
// deterministic tests.
func NewServiceWithGenerator(sessions SessionRepository, content ContentRepository, history HistoryRepository, ruleSets RuleSetRepository, stats StatsSink, playlists *PlaylistGenerator) *Service {
	return &Service{
		sessions:  sessions,
		content:   content,
		history:   history,
		ruleSets:  ruleSets,
		stats:     stats,
		playlists: playlists,
	}
}

// StartOrResume returns the player's current question, starting a new
// game when none is in progress or fresh is true. When the cursor has
// passed the last playlist entry the session completes lazily and the
// summary is returned instead of a question.
func (s *Service) StartOrResume(ctx context.Context, player, slug string, fresh bool) (domain.Progress, error) {
	cfg, err := s.ruleSets.GetActiveRuleSet(ctx, slug)
	if err != nil {
		return domain.Progress{}, err
	}

	key := SessionKey{Player: player, RuleSet: slug}
	session, _, err := s.sessions.GetOrStart(ctx, key, fresh, func(ctx context.Context) ([]int, error) {
		seen, err := s.history.SeenQuestionIDs(ctx, player)
		if err != nil {
			// Novelty bias is best-effort; a broken history read must not
			// block starting a game.
			log.Printf("seen-question lookup failed for %s: %v", player, err)
			seen = nil
		}
		return s.playlists.Generate(ctx, cfg, seen)
	})
	if err != nil {
		return domain.Progress{}, err
	}

	if session.Status.Terminal() {
		return domain.Progress{Summary: s.summarize(cfg, session)}, nil
	}
	if session.Exhausted() {
		return s.complete(ctx, key, cfg, session)
	}

	question, err := s.content.GetQuestion(ctx, session.Playlist[session.Cursor])
	if err != nil {
		return domain.Progress{}, err
	}
	return domain.Progress{Question: &domain.NextQuestion{
		Question: domain.QuestionView{
			ID:              question.ID,
			Text:            question.Text,
			Answers:         question.Answers,
			Hint:            question.Hint,
			DifficultyLevel: question.DifficultyLevel,
		},
		Position:     session.Cursor + 1,
		Total:        len(session.Playlist),
		TimerSeconds: cfg.TimerSeconds,
		Score:        session.Score,
	}}, nil
}

// SubmitAnswer validates and scores one submission. An empty selected
// token (client-reported timeout) is always incorrect, never an error.
// Stale or duplicate submissions are silent no-ops that still report the
// current running state.
func (s *Service) SubmitAnswer(ctx context.Context, player, slug string, questionID int, selected string) (domain.AnswerResult, error) {
	cfg, err := s.ruleSets.GetActiveRuleSet(ctx, slug)
	if err != nil {
		return domain.AnswerResult{}, err
	}

	key := SessionKey{Player: player, RuleSet: slug}
	session, ok, err := s.sessions.Get(ctx, key)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	if !ok {
		return domain.AnswerResult{}, domain.ErrSessionNotFound
	}

	question, err := s.content.GetQuestion(ctx, questionID)
	if err != nil {
		return domain.AnswerResult{}, err
	}

	correct := selected != "" && selected == question.CorrectAnswer
	delta := Score(cfg.Scoring, question, correct, session.Answers)

	s.emitStats(ctx, player, question, correct, selected)

	advanced, err := s.sessions.AdvanceIfCurrent(ctx, key, questionID)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	awarded := 0
	if advanced {
		session, err = s.sessions.ApplyAnswer(ctx, key, domain.AnswerEvent{
			QuestionID: questionID,
			Selected:   selected,
			Correct:    correct,
		}, delta)
		if err != nil {
			return domain.AnswerResult{}, err
		}
		awarded = delta
	}

	return domain.AnswerResult{
		QuestionID:     questionID,
		Correct:        correct,
		Awarded:        awarded,
		TotalScore:     session.Score,
		AnsweredCount:  session.Cursor,
		TotalQuestions: len(session.Playlist),
		CorrectAnswer:  question.CorrectAnswer,
		DetailedAnswer: question.DetailedAnswer,
	}, nil
}

// Cancel abandons the player's session for slug. Cancelling a missing or
// already-terminal session is a no-op.
func (s *Service) Cancel(ctx context.Context, player, slug string) error {
	return s.sessions.Cancel(ctx, SessionKey{Player: player, RuleSet: slug})
}

func (s *Service) complete(ctx context.Context, key SessionKey, cfg domain.RuleSetConfig, session domain.Session) (domain.Progress, error) {
	bonus := FinalBonus(cfg.Scoring, session.CorrectCount, len(session.Playlist))
	session, err := s.sessions.Complete(ctx, key, bonus)
	if err != nil {
		return domain.Progress{}, err
	}
	return domain.Progress{Summary: s.summarize(cfg, session)}, nil
}

func (s *Service) summarize(cfg domain.RuleSetConfig, session domain.Session) *domain.SessionSummary {
	total := len(session.Playlist)
	return &domain.SessionSummary{
		RuleSetSlug:    session.RuleSetSlug,
		Status:         session.Status,
		TotalScore:     session.Score,
		CorrectCount:   session.CorrectCount,
		TotalQuestions: total,
		Perfect:        total > 0 && session.CorrectCount == total,
		Won:            Won(cfg.Scoring, session.CorrectCount),
	}
}

// emitStats pushes aggregate counters before the cursor advances, so the
// writes are at-least-once under client retry. Failures are logged and
// swallowed: stats never break gameplay.
func (s *Service) emitStats(ctx context.Context, player string, question domain.Question, correct bool, selected string) {
	answerIndex := 0
	if idx, err := strconv.Atoi(selected); err == nil && idx >= 1 && idx <= len(question.Answers) {
		answerIndex = idx
	}
	if err := s.stats.RecordQuestionAnswered(ctx, question.ID, correct, answerIndex); err != nil {
		log.Printf("record question stats for %d: %v", question.ID, err)
	}
	if err := s.stats.RecordUserQuestionAnswered(ctx, player, question.ID, correct, selected); err != nil {
		log.Printf("record user stats for %s/%d: %v", player, question.ID, err)
	}
}
