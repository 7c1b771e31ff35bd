package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
)

// StatsStore persists answer aggregates: per-question counters, the
// answer-index distribution, and the per-player history that later feeds
// the seen-question bias. Writes are at-least-once; a client retry may
// bump a counter twice, which the aggregates tolerate.
type StatsStore struct {
	pool *pgxpool.Pool
}

func NewStatsStore(pool *pgxpool.Pool) *StatsStore {
	return &StatsStore{pool: pool}
}

func (s *StatsStore) RecordQuestionAnswered(ctx context.Context, questionID int, correct bool, answerIndex int) error {
	success := 0
	if correct {
		success = 1
	}
	// Running success rate folded into the existing counter.
	_, err := s.pool.Exec(ctx, `
		UPDATE questions
		SET success_rate = (success_rate * times_answered + $2) / (times_answered + 1),
		    times_answered = times_answered + 1,
		    updated_at = now()
		WHERE id = $1`, questionID, success)
	if err != nil {
		return fmt.Errorf("update question stats: %w", err)
	}
	if answerIndex > 0 {
		_, err = s.pool.Exec(ctx, `
			INSERT INTO question_answer_stats (question_id, answer_index, selected_count)
			VALUES ($1, $2, 1)
			ON CONFLICT (question_id, answer_index)
			DO UPDATE SET selected_count = question_answer_stats.selected_count + 1`,
			questionID, answerIndex)
		if err != nil {
			return fmt.Errorf("update answer distribution: %w", err)
		}
	}
	return nil
}

func (s *StatsStore) RecordUserQuestionAnswered(ctx context.Context, player string, questionID int, correct bool, selected string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_question_answers (player, question_id, was_correct, selected)
		VALUES ($1, $2, $3, $4)`, player, questionID, correct, selected)
	if err != nil {
		return fmt.Errorf("record user answer: %w", err)
	}
	return nil
}

// SeenQuestionIDs implements app.HistoryRepository off the same table.
func (s *StatsStore) SeenQuestionIDs(ctx context.Context, player string) (map[int]struct{}, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT question_id FROM user_question_answers WHERE player = $1`, player)
	if err != nil {
		return nil, fmt.Errorf("seen question ids: %w", err)
	}
	defer rows.Close()
	seen := make(map[int]struct{})
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan seen id: %w", err)
		}
		seen[id] = struct{}{}
	}
	return seen, rows.Err()
}
