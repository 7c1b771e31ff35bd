package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quiz-session-service/internal/domain"
)

// RuleSetLoader fetches rule set configurations from a backing store.
type RuleSetLoader interface {
	LoadRuleSet(ctx context.Context, slug string) (domain.RuleSetConfig, error)
}

// RuleSetRepository caches validated rule sets with TTL to avoid
// re-reading configuration on every request.
type RuleSetRepository struct {
	loader RuleSetLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedRuleSet
}

type cachedRuleSet struct {
	ruleSet   domain.RuleSetConfig
	expiresAt time.Time
}

func NewRuleSetRepository(loader RuleSetLoader, ttl time.Duration) *RuleSetRepository {
	return &RuleSetRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedRuleSet),
	}
}

func (r *RuleSetRepository) GetActiveRuleSet(ctx context.Context, slug string) (domain.RuleSetConfig, error) {
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[slug]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.ruleSet, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(slug, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[slug]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.ruleSet, nil
		}
		r.mu.RUnlock()

		ruleSet, err := r.loader.LoadRuleSet(ctx, slug)
		if err != nil {
			return domain.RuleSetConfig{}, err
		}

		r.mu.Lock()
		r.cache[slug] = cachedRuleSet{
			ruleSet:   ruleSet,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return ruleSet, nil
	})
	if err != nil {
		return domain.RuleSetConfig{}, err
	}
	return result.(domain.RuleSetConfig), nil
}

// StaticRuleSetLoader serves rule sets from an in-memory map (tests/demos).
type StaticRuleSetLoader struct {
	ruleSets map[string]domain.RuleSetConfig
}

func NewStaticRuleSetLoader(ruleSets map[string]domain.RuleSetConfig) *StaticRuleSetLoader {
	return &StaticRuleSetLoader{ruleSets: ruleSets}
}

func (l *StaticRuleSetLoader) LoadRuleSet(_ context.Context, slug string) (domain.RuleSetConfig, error) {
	ruleSet, ok := l.ruleSets[slug]
	if !ok || !ruleSet.Active {
		return domain.RuleSetConfig{}, domain.ErrRuleSetNotFound
	}
	if err := ruleSet.Validate(); err != nil {
		return domain.RuleSetConfig{}, err
	}
	return ruleSet, nil
}

func (r *RuleSetRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
