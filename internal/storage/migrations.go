package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"time"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migration is one schema change, named after its file.
type Migration struct {
	Name      string     `json:"name"`
	AppliedAt *time.Time `json:"applied_at,omitempty"`

	sql string
}

// Migrate applies the pending migrations in file name order and returns
// how many ran. Each migration commits together with its _migrations row,
// so a failed one leaves no trace and is retried on the next start.
func Migrate(ctx context.Context, db *DB, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pending, err := PendingMigrations(ctx, db)
	if err != nil {
		return 0, err
	}

	for i, m := range pending {
		logger.Info("applying migration", "name", m.Name)
		err := db.Transaction(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.sql); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO _migrations (name, applied_at) VALUES (?, ?)", m.Name, time.Now().UTC())
			return err
		})
		if err != nil {
			return i, fmt.Errorf("applying migration %s: %w", m.Name, err)
		}
	}
	return len(pending), nil
}

// PendingMigrations lists the embedded migrations not yet recorded in db.
func PendingMigrations(ctx context.Context, db *DB) ([]Migration, error) {
	all, err := Migrations(ctx, db)
	if err != nil {
		return nil, err
	}

	var pending []Migration
	for _, m := range all {
		if m.AppliedAt == nil {
			pending = append(pending, m)
		}
	}
	return pending, nil
}

// Migrations lists every embedded migration with the time it was applied,
// if it was.
func Migrations(ctx context.Context, db *DB) ([]Migration, error) {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS _migrations (
			name TEXT PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return nil, fmt.Errorf("creating migrations table: %w", err)
	}

	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	migrations := make([]Migration, 0, len(names))
	for _, path := range names {
		content, err := migrationsFS.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		m := Migration{Name: path[len("migrations/"):], sql: string(content)}
		if at, ok := applied[m.Name]; ok {
			m.AppliedAt = &at
		}
		migrations = append(migrations, m)
	}
	return migrations, nil
}

func appliedMigrations(ctx context.Context, db *DB) (map[string]time.Time, error) {
	rows, err := db.QueryContext(ctx, "SELECT name, applied_at FROM _migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]time.Time)
	for rows.Next() {
		var (
			name string
			at   time.Time
		)
		if err := rows.Scan(&name, &at); err != nil {
			return nil, err
		}
		applied[name] = at
	}
	return applied, rows.Err()
}
