package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed 0001_create_quiz_schema.sql
var createQuizSchemaSQL string

var Migrations = migrate.NewMigrations()

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(createQuizSchemaSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(`
				DROP TABLE IF EXISTS question_answer_stats;
				DROP TABLE IF EXISTS user_question_answers;
				DROP TABLE IF EXISTS question_keywords;
				DROP TABLE IF EXISTS keywords;
				DROP TABLE IF EXISTS question_countries;
				DROP TABLE IF EXISTS quiz_rule_sets;
				DROP TABLE IF EXISTS questions;
			`)
			return err
		},
	)
}
