// Package migrations holds the bun migrations for the attempt service schema.
package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

var Migrations = migrate.NewMigrations()

func execSQL(ctx context.Context, db *bun.DB, query string) error {
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("exec migration: %w", err)
	}
	return nil
}
