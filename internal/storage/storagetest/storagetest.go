// Package storagetest opens throwaway databases for tests.
package storagetest

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/team-calendar/backend/internal/storage"
)

// Open creates a migrated SQLite database under t.TempDir and closes it
// when the test ends.
func Open(t testing.TB) *storage.DB {
	t.Helper()

	ctx := context.Background()
	db, err := storage.Open(ctx, filepath.Join(t.TempDir(), "calendar.db"), storage.DefaultOpenOptions)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = storage.Migrate(ctx, db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	return db
}
