package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-session-service/internal/domain"
)

// RuleSetLoader loads rule set JSONB from Postgres and validates it
// before handing it to the engine.
type RuleSetLoader struct {
	pool *pgxpool.Pool
}

func NewRuleSetLoader(pool *pgxpool.Pool) *RuleSetLoader {
	return &RuleSetLoader{pool: pool}
}

func (l *RuleSetLoader) LoadRuleSet(ctx context.Context, slug string) (domain.RuleSetConfig, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM quiz_rule_sets WHERE slug=$1 AND active`, slug).Scan(&raw)
	if err == pgx.ErrNoRows {
		return domain.RuleSetConfig{}, domain.ErrRuleSetNotFound
	}
	if err != nil {
		return domain.RuleSetConfig{}, fmt.Errorf("load rule set: %w", err)
	}
	var ruleSet domain.RuleSetConfig
	if err := json.Unmarshal(raw, &ruleSet); err != nil {
		return domain.RuleSetConfig{}, fmt.Errorf("unmarshal rule set: %w", err)
	}
	ruleSet.Slug = slug
	ruleSet.Active = true
	if err := ruleSet.Validate(); err != nil {
		return domain.RuleSetConfig{}, err
	}
	return ruleSet, nil
}
