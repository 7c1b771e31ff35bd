package memory

import (
	"context"
	"sync"
)

// StatsRecorder keeps answer aggregates in memory. It implements both
// app.StatsSink and app.HistoryRepository: recorded per-player answers
// immediately feed the seen-question bias of the next playlist.
type StatsRecorder struct {
	mu sync.RWMutex
	// per-question counters, mirroring times_answered / success counts
	answered map[int]int
	correct  map[int]int
	// answer distribution: question id -> answer index -> picks
	distribution map[int]map[int]int
	// per-player answered question ids
	seen map[string]map[int]struct{}
}

func NewStatsRecorder() *StatsRecorder {
	return &StatsRecorder{
		answered:     make(map[int]int),
		correct:      make(map[int]int),
		distribution: make(map[int]map[int]int),
		seen:         make(map[string]map[int]struct{}),
	}
}

func (r *StatsRecorder) RecordQuestionAnswered(ctx context.Context, questionID int, correct bool, answerIndex int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.answered[questionID]++
	if correct {
		r.correct[questionID]++
	}
	if answerIndex > 0 {
		dist, ok := r.distribution[questionID]
		if !ok {
			dist = make(map[int]int)
			r.distribution[questionID] = dist
		}
		dist[answerIndex]++
	}
	return nil
}

func (r *StatsRecorder) RecordUserQuestionAnswered(ctx context.Context, player string, questionID int, correct bool, selected string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids, ok := r.seen[player]
	if !ok {
		ids = make(map[int]struct{})
		r.seen[player] = ids
	}
	ids[questionID] = struct{}{}
	return nil
}

func (r *StatsRecorder) SeenQuestionIDs(ctx context.Context, player string) (map[int]struct{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make(map[int]struct{}, len(r.seen[player]))
	for id := range r.seen[player] {
		ids[id] = struct{}{}
	}
	return ids, nil
}

// TimesAnswered reports the per-question counter (test helper).
func (r *StatsRecorder) TimesAnswered(questionID int) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.answered[questionID]
}
