// Package postgres implements the persistence contract on PostgreSQL. XP and
// score increments go through the incrementar_xp and incrementar_pontuacao
// SQL functions so concurrent increments stay additive.
package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/benjudge/internal/storage/migrations"
	schema "github.com/felixgeelhaar/benjudge/internal/storage/postgres/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Open connects a pool to the database at url and verifies connectivity.
func Open(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// Migrate applies pending schema migrations and returns the schema version.
// A nil logger uses slog.Default.
func Migrate(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (int, error) {
	return migrations.Run(ctx, target{pool}, schema.FS, logger)
}

// target adapts the pool to the migration runner.
type target struct {
	pool *pgxpool.Pool
}

func (t target) EnsureTable(ctx context.Context) error {
	_, err := t.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	return err
}

func (t target) Version(ctx context.Context) (int, error) {
	var version int
	err := t.pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version)
	return version, err
}

func (t target) Apply(ctx context.Context, step migrations.Step) error {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, step.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, step.Version); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit(ctx)
}
