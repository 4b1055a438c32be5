package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/benjudge/internal/storage/migrations"
	schema "github.com/felixgeelhaar/benjudge/internal/storage/sqlite/migrations"
	_ "github.com/mattn/go-sqlite3"
)

// DB is a single-writer SQLite handle holding the progress schema.
type DB struct {
	*sql.DB
}

// Open connects to the database file at path with WAL journaling, foreign
// keys and a busy timeout so concurrent readers wait instead of failing.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite allows one writer at a time
	db.SetMaxOpenConns(1)

	return &DB{DB: db}, nil
}

// Migrate applies pending schema migrations and returns the schema version.
// A nil logger uses slog.Default.
func (db *DB) Migrate(ctx context.Context, logger *slog.Logger) (int, error) {
	return migrations.Run(ctx, target{db.DB}, schema.FS, logger)
}

// target adapts the handle to the migration runner.
type target struct {
	db *sql.DB
}

func (t target) EnsureTable(ctx context.Context) error {
	_, err := t.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	return err
}

func (t target) Version(ctx context.Context) (int, error) {
	var version int
	err := t.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version)
	return version, err
}

func (t target) Apply(ctx context.Context, step migrations.Step) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, step.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, step.Version); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit()
}
