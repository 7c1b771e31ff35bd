package app

import (
	"context"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"quiz-session-service/internal/domain"
)

// PlaylistGenerator builds the ordered question-id sequence for one game.
// Auto mode fills per-difficulty quotas from the pool, preferring
// questions the player has not seen; manual mode shuffles a curated list
// with the same unseen-first bias. A pool too small for its quota is a
// shortfall, not an error: the playlist is simply shorter.
type PlaylistGenerator struct {
	content ContentRepository

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewPlaylistGenerator(content ContentRepository) *PlaylistGenerator {
	return NewPlaylistGeneratorWithRand(content, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewPlaylistGeneratorWithRand allows a seeded source for deterministic tests.
func NewPlaylistGeneratorWithRand(content ContentRepository, rnd *rand.Rand) *PlaylistGenerator {
	return &PlaylistGenerator{content: content, rnd: rnd}
}

// Generate produces the playlist for cfg given the player's seen-question
// set (empty for anonymous players). An empty result is valid and means a
// zero-length game.
func (g *PlaylistGenerator) Generate(ctx context.Context, cfg domain.RuleSetConfig, seen map[int]struct{}) ([]int, error) {
	if cfg.SelectionMode == domain.SelectionManual {
		return g.generateManual(ctx, cfg, seen)
	}
	return g.generateAuto(ctx, cfg, seen)
}

func (g *PlaylistGenerator) generateManual(ctx context.Context, cfg domain.RuleSetConfig, seen map[int]struct{}) ([]int, error) {
	published, err := g.content.FilterPublished(ctx, dedupe(cfg.QuestionIDs))
	if err != nil {
		return nil, err
	}
	unseen, seenIDs := partitionBySeen(published, seen)
	g.shuffle(unseen)
	g.shuffle(seenIDs)
	return append(unseen, seenIDs...), nil
}

func (g *PlaylistGenerator) generateAuto(ctx context.Context, cfg domain.RuleSetConfig, seen map[int]struct{}) ([]int, error) {
	difficulties := append([]int(nil), cfg.AllowedDifficulties...)
	sort.Ints(difficulties)

	// usedKeywords spans the whole playlist: with the prevention flag, a
	// keyword claimed in one difficulty bucket blocks every later bucket.
	var usedKeywords map[int]struct{}
	if cfg.PreventDuplicateKeywords {
		usedKeywords = make(map[int]struct{})
	}

	var buckets [][]int
	for _, d := range difficulties {
		quota := cfg.Quotas[d]
		if quota <= 0 {
			continue
		}
		candidates, err := g.content.FindCandidates(ctx, CandidateFilter{
			Difficulty: d,
			ThemeIDs:   cfg.ThemeIDs,
			CountryIDs: cfg.CountryIDs,
			KeywordIDs: cfg.KeywordIDs,
		})
		if err != nil {
			return nil, err
		}
		var keywords map[int][]int
		if usedKeywords != nil {
			keywords, err = g.content.QuestionKeywords(ctx, candidates)
			if err != nil {
				return nil, err
			}
		}
		picked := g.pickPreferUnseen(candidates, seen, quota, keywords, usedKeywords)
		if len(picked) < quota {
			log.Printf("question pool shortfall for rule set %s: difficulty %d wanted %d, got %d", cfg.Slug, d, quota, len(picked))
		}
		if len(picked) > 0 {
			buckets = append(buckets, picked)
		}
	}
	return interleave(buckets), nil
}

// pickPreferUnseen shuffles the unseen and seen partitions independently
// and selects up to quota ids, exhausting unseen before touching seen.
// With a non-nil usedKeywords set, candidates sharing a keyword with an
// earlier pick are skipped and each pick claims its keywords.
func (g *PlaylistGenerator) pickPreferUnseen(candidates []int, seen map[int]struct{}, quota int, keywords map[int][]int, usedKeywords map[int]struct{}) []int {
	unseen, seenIDs := partitionBySeen(candidates, seen)
	g.shuffle(unseen)
	g.shuffle(seenIDs)

	picked := make([]int, 0, quota)
	for _, pool := range [][]int{unseen, seenIDs} {
		for _, id := range pool {
			if len(picked) == quota {
				return picked
			}
			if usedKeywords != nil && claimsUsedKeyword(keywords[id], usedKeywords) {
				continue
			}
			picked = append(picked, id)
			for _, kw := range keywords[id] {
				usedKeywords[kw] = struct{}{}
			}
		}
	}
	return picked
}

func claimsUsedKeyword(keywords []int, used map[int]struct{}) bool {
	for _, kw := range keywords {
		if _, ok := used[kw]; ok {
			return true
		}
	}
	return false
}

// interleave merges the per-difficulty buckets round-robin in ascending
// difficulty order, dropping exhausted buckets, so same-difficulty
// questions do not cluster.
func interleave(buckets [][]int) []int {
	total := 0
	for _, b := range buckets {
		total += len(b)
	}
	merged := make([]int, 0, total)
	for len(buckets) > 0 {
		remaining := buckets[:0]
		for _, b := range buckets {
			merged = append(merged, b[0])
			if len(b) > 1 {
				remaining = append(remaining, b[1:])
			}
		}
		buckets = remaining
	}
	return merged
}

func partitionBySeen(ids []int, seen map[int]struct{}) (unseen, seenIDs []int) {
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			seenIDs = append(seenIDs, id)
		} else {
			unseen = append(unseen, id)
		}
	}
	return unseen, seenIDs
}

func dedupe(ids []int) []int {
	known := make(map[int]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := known[id]; ok {
			continue
		}
		known[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// shuffle is Fisher-Yates under the generator lock; *rand.Rand is not
// safe for concurrent use.
func (g *PlaylistGenerator) shuffle(ids []int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := len(ids) - 1; i > 0; i-- {
		j := g.rnd.Intn(i + 1)
		ids[i], ids[j] = ids[j], ids[i]
	}
}
