package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
)

// answerSeparator matches the authoring format: possible answers are
// stored in one text column joined with "|||".
const answerSeparator = "|||"

// ContentStore answers question queries against the authoring schema.
type ContentStore struct {
	pool *pgxpool.Pool
}

func NewContentStore(pool *pgxpool.Pool) *ContentStore {
	return &ContentStore{pool: pool}
}

func (s *ContentStore) FindCandidates(ctx context.Context, filter app.CandidateFilter) ([]int, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT id FROM questions WHERE is_published AND difficulty_level = $1`)
	args := []interface{}{filter.Difficulty}
	if len(filter.ThemeIDs) > 0 {
		args = append(args, toInt32(filter.ThemeIDs))
		fmt.Fprintf(&query, ` AND broad_theme_id = ANY($%d)`, len(args))
	}
	if len(filter.CountryIDs) > 0 {
		args = append(args, toInt32(filter.CountryIDs))
		fmt.Fprintf(&query, ` AND id IN (SELECT question_id FROM question_countries WHERE country_id = ANY($%d))`, len(args))
	}
	if len(filter.KeywordIDs) > 0 {
		args = append(args, toInt32(filter.KeywordIDs))
		fmt.Fprintf(&query, ` AND id IN (SELECT question_id FROM question_keywords WHERE keyword_id = ANY($%d))`, len(args))
	}

	rows, err := s.pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (s *ContentStore) FilterPublished(ctx context.Context, ids []int) ([]int, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT id FROM questions WHERE is_published AND id = ANY($1)`, toInt32(ids))
	if err != nil {
		return nil, fmt.Errorf("filter published: %w", err)
	}
	defer rows.Close()
	published, err := scanIDs(rows)
	if err != nil {
		return nil, err
	}
	keep := make(map[int]struct{}, len(published))
	for _, id := range published {
		keep[id] = struct{}{}
	}
	// Preserve the curated order of the input list.
	ordered := make([]int, 0, len(published))
	for _, id := range ids {
		if _, ok := keep[id]; ok {
			ordered = append(ordered, id)
		}
	}
	return ordered, nil
}

func (s *ContentStore) QuestionKeywords(ctx context.Context, ids []int) (map[int][]int, error) {
	if len(ids) == 0 {
		return map[int][]int{}, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT question_id, keyword_id FROM question_keywords WHERE question_id = ANY($1)`, toInt32(ids))
	if err != nil {
		return nil, fmt.Errorf("question keywords: %w", err)
	}
	defer rows.Close()
	keywords := make(map[int][]int)
	for rows.Next() {
		var questionID, keywordID int
		if err := rows.Scan(&questionID, &keywordID); err != nil {
			return nil, fmt.Errorf("scan keyword: %w", err)
		}
		keywords[questionID] = append(keywords[questionID], keywordID)
	}
	return keywords, rows.Err()
}

func (s *ContentStore) GetQuestion(ctx context.Context, id int) (domain.Question, error) {
	var (
		q       domain.Question
		answers string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, question_text, possible_answers, correct_answer,
		       COALESCE(detailed_answer, ''), COALESCE(hint, ''),
		       COALESCE(broad_theme_id, 0), COALESCE(specific_theme_id, 0),
		       difficulty_level, is_published
		FROM questions WHERE id = $1`, id).
		Scan(&q.ID, &q.Text, &answers, &q.CorrectAnswer, &q.DetailedAnswer, &q.Hint,
			&q.ThemeID, &q.SpecificThemeID, &q.DifficultyLevel, &q.Published)
	if err == pgx.ErrNoRows {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	if err != nil {
		return domain.Question{}, fmt.Errorf("load question: %w", err)
	}
	if answers != "" {
		q.Answers = strings.Split(answers, answerSeparator)
	}
	keywords, err := s.QuestionKeywords(ctx, []int{id})
	if err != nil {
		return domain.Question{}, err
	}
	q.KeywordIDs = keywords[id]
	return q, nil
}

func scanIDs(rows pgx.Rows) ([]int, error) {
	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func toInt32(ids []int) []int32 {
	out := make([]int32, len(ids))
	for i, id := range ids {
		out[i] = int32(id)
	}
	return out
}
