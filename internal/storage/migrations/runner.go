// Package migrations applies numbered SQL files to a progress store. Files are
// named NNN_description.sql and applied in version order, each in its own
// transaction; the highest applied version is the schema version.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
)

// Step is one numbered migration file.
type Step struct {
	Version int
	Name    string
	SQL     string
}

// Target is the store-specific half of a migration run.
type Target interface {
	// EnsureTable creates the schema_migrations bookkeeping table.
	EnsureTable(ctx context.Context) error
	// Version returns the highest applied version, 0 for a fresh store.
	Version(ctx context.Context) (int, error)
	// Apply runs step and records its version in one transaction.
	Apply(ctx context.Context, step Step) error
}

// Load reads the migration steps in fsys in version order. Files that do
// not carry a version prefix are skipped.
func Load(fsys fs.FS, logger *slog.Logger) ([]Step, error) {
	if logger == nil {
		logger = slog.Default()
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var steps []Step
	seen := make(map[int]string)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		version, err := ParseVersion(e.Name())
		if err != nil {
			logger.Warn("skipping non-migration file", "name", e.Name(), "error", err)
			continue
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("migrations %s and %s share version %d", prev, e.Name(), version)
		}
		seen[version] = e.Name()

		data, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		steps = append(steps, Step{Version: version, Name: e.Name(), SQL: string(data)})
	}

	sort.Slice(steps, func(i, j int) bool { return steps[i].Version < steps[j].Version })
	return steps, nil
}

// Run applies every step in fsys newer than the target's version and
// returns the resulting schema version.
func Run(ctx context.Context, t Target, fsys fs.FS, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := t.EnsureTable(ctx); err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}
	current, err := t.Version(ctx)
	if err != nil {
		return 0, fmt.Errorf("get current version: %w", err)
	}

	steps, err := Load(fsys, logger)
	if err != nil {
		return current, err
	}

	applied := 0
	for _, step := range steps {
		if step.Version <= current {
			continue
		}
		if err := ctx.Err(); err != nil {
			return current, err
		}
		if err := t.Apply(ctx, step); err != nil {
			return current, fmt.Errorf("apply migration %s: %w", step.Name, err)
		}
		current = step.Version
		applied++
		logger.Info("applied migration", "name", step.Name, "version", step.Version)
	}

	if applied > 0 {
		logger.Info("migrations complete", "applied", applied, "version", current)
	}
	return current, nil
}

// ParseVersion extracts the version from a filename like "001_initial.sql".
func ParseVersion(name string) (int, error) {
	prefix, _, ok := strings.Cut(name, "_")
	if !ok {
		return 0, fmt.Errorf("invalid migration filename: %s", name)
	}
	var version int
	if _, err := fmt.Sscanf(prefix, "%d", &version); err != nil {
		return 0, fmt.Errorf("parse version from %s: %w", name, err)
	}
	return version, nil
}
