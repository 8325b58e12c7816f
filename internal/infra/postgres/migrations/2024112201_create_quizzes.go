package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
)

//go:embed 0001_create_quizzes.sql
var createQuizzesSQL string

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			return execSQL(ctx, db, createQuizzesSQL)
		},
		func(ctx context.Context, db *bun.DB) error {
			return execSQL(ctx, db, `DROP TABLE IF EXISTS quizzes`)
		},
	)
}
