package store

import (
	"context"
	"database/sql"

	"github.com/dstepanovs/teamplan/internal/server/migrations"
	"github.com/pressly/goose/v3"
)

// Migrate applies the embedded goose migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}
