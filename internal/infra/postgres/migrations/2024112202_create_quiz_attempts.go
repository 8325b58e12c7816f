package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
)

//go:embed 0002_create_quiz_attempts.sql
var createQuizAttemptsSQL string

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			return execSQL(ctx, db, createQuizAttemptsSQL)
		},
		func(ctx context.Context, db *bun.DB) error {
			return execSQL(ctx, db, `DROP TABLE IF EXISTS quiz_attempts`)
		},
	)
}
