package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quiz-session-service/internal/domain"
)

// RuleSetLoader fetches rule set configurations from a backing store.
type RuleSetLoader interface {
	LoadRuleSet(ctx context.Context, slug string) (domain.RuleSetConfig, error)
}

// RuleSetRepository caches validated rule sets as JSON strings in Redis
// (key per slug) and falls back to the loader on cache miss.
type RuleSetRepository struct {
	client *redis.Client
	loader RuleSetLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewRuleSetRepository(client *redis.Client, loader RuleSetLoader, ttl time.Duration) *RuleSetRepository {
	return &RuleSetRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *RuleSetRepository) GetActiveRuleSet(ctx context.Context, slug string) (domain.RuleSetConfig, error) {
	cacheKey := r.cacheKey(slug)

	if raw, err := r.client.Get(ctx, cacheKey).Bytes(); err == nil {
		var ruleSet domain.RuleSetConfig
		if err := json.Unmarshal(raw, &ruleSet); err == nil {
			return ruleSet, nil
		}
		// A corrupt cache entry falls through to a reload.
	}

	result, err, _ := r.sf.Do(slug, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if raw, err := r.client.Get(ctx, cacheKey).Bytes(); err == nil {
			var ruleSet domain.RuleSetConfig
			if err := json.Unmarshal(raw, &ruleSet); err == nil {
				return ruleSet, nil
			}
		}

		ruleSet, err := r.loader.LoadRuleSet(ctx, slug)
		if err != nil {
			return domain.RuleSetConfig{}, err
		}

		raw, err := json.Marshal(ruleSet)
		if err != nil {
			return domain.RuleSetConfig{}, fmt.Errorf("marshal rule set: %w", err)
		}
		_ = r.client.Set(ctx, cacheKey, raw, r.ttlWithJitter()).Err()
		return ruleSet, nil
	})
	if err != nil {
		return domain.RuleSetConfig{}, err
	}
	return result.(domain.RuleSetConfig), nil
}

func (r *RuleSetRepository) cacheKey(slug string) string {
	return "quiz:ruleset:" + slug
}

func (r *RuleSetRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
