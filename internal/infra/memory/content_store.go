package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
)

// ContentStore serves question queries from an in-memory map (useful for
// tests and demo runs without Postgres).
type ContentStore struct {
	mu        sync.RWMutex
	questions map[int]domain.Question
}

func NewContentStore(questions ...domain.Question) *ContentStore {
	byID := make(map[int]domain.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	return &ContentStore{questions: byID}
}

// Add inserts or replaces a question.
func (s *ContentStore) Add(q domain.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions[q.ID] = q
}

func (s *ContentStore) FindCandidates(ctx context.Context, filter app.CandidateFilter) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []int
	for _, q := range s.questions {
		if !q.Published || q.DifficultyLevel != filter.Difficulty {
			continue
		}
		if len(filter.ThemeIDs) > 0 && !containsInt(filter.ThemeIDs, q.ThemeID) {
			continue
		}
		if len(filter.CountryIDs) > 0 && !intersects(filter.CountryIDs, q.CountryIDs) {
			continue
		}
		if len(filter.KeywordIDs) > 0 && !intersects(filter.KeywordIDs, q.KeywordIDs) {
			continue
		}
		ids = append(ids, q.ID)
	}
	// Stable order; selection randomness belongs to the generator.
	sort.Ints(ids)
	return ids, nil
}

func (s *ContentStore) FilterPublished(ctx context.Context, ids []int) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	published := make([]int, 0, len(ids))
	for _, id := range ids {
		if q, ok := s.questions[id]; ok && q.Published {
			published = append(published, id)
		}
	}
	return published, nil
}

func (s *ContentStore) QuestionKeywords(ctx context.Context, ids []int) (map[int][]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keywords := make(map[int][]int)
	for _, id := range ids {
		if q, ok := s.questions[id]; ok && len(q.KeywordIDs) > 0 {
			keywords[id] = append([]int(nil), q.KeywordIDs...)
		}
	}
	return keywords, nil
}

func (s *ContentStore) GetQuestion(ctx context.Context, id int) (domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.questions[id]
	if !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return q, nil
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func intersects(a, b []int) bool {
	for _, x := range a {
		if containsInt(b, x) {
			return true
		}
	}
	return false
}
