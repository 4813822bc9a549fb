package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version text PRIMARY KEY,
	applied_at timestamptz NOT NULL
)`

// Migrate applies the embedded migrations in file name order. Each file runs
// in its own transaction together with its schema_migrations row.
func Migrate(ctx context.Context, db PgxPool) error {
	if _, err := db.Exec(ctx, migrationsTable); err != nil {
		return fmt.Errorf("op=postgres.Migrate: %w", err)
	}
	files, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("op=postgres.Migrate: %w", err)
	}
	sort.Strings(files)
	for _, file := range files {
		version := strings.TrimSuffix(path.Base(file), ".sql")
		contents, err := migrationsFS.ReadFile(file)
		if err != nil {
			return fmt.Errorf("op=postgres.Migrate: %w", err)
		}
		if err := applyMigration(ctx, db, version, string(contents)); err != nil {
			return fmt.Errorf("op=postgres.Migrate version=%s: %w", version, err)
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db PgxPool, version, contents string) error {
	tx, err := db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`INSERT INTO schema_migrations (version, applied_at) VALUES ($1, $2) ON CONFLICT (version) DO NOTHING`,
		version, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return nil
	}
	if _, err := tx.Exec(ctx, contents); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
