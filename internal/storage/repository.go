package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"
)

// Queryable represents a database connection that can execute queries.
// Both *sql.DB and *sql.Tx implement this interface.
type Queryable interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// BaseRepository provides common functionality for all repositories.
// A repository bound to a transaction runs every statement on that
// transaction instead of the pool.
type BaseRepository struct {
	db *DB
	q  Queryable
}

// NewBaseRepository creates a new base repository with the given database connection.
func NewBaseRepository(db *DB) BaseRepository {
	return BaseRepository{db: db, q: db}
}

// DB returns the underlying database connection.
func (r *BaseRepository) DB() *DB {
	return r.db
}

// Q returns the connection statements should run on.
func (r *BaseRepository) Q() Queryable {
	return r.q
}

// bind returns a copy of the base repository that runs on tx.
func (r BaseRepository) bind(tx *sql.Tx) BaseRepository {
	return BaseRepository{db: r.db, q: tx}
}

// Now returns the current time in UTC for database timestamps.
func (r *BaseRepository) Now() time.Time {
	return time.Now().UTC()
}

// Transaction executes a function within a database transaction.
func (r *BaseRepository) Transaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return r.db.Transaction(ctx, fn)
}

// GenerateID creates a new random UUID for use as a primary key.
func GenerateID() string {
	return uuid.NewString()
}

// IsUniqueViolation reports whether err came from a UNIQUE constraint.
func IsUniqueViolation(err error) bool {
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) {
		return sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqlErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// encodeJSON marshals v for a TEXT column, storing NULL for nil values.
func encodeJSON(v any, isNil bool) (sql.NullString, error) {
	if isNil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encoding json column: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// decodeJSON unmarshals a nullable TEXT column into dst. It returns false
// when the column was NULL or empty.
func decodeJSON(src sql.NullString, dst any) (bool, error) {
	if !src.Valid || src.String == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(src.String), dst); err != nil {
		return false, fmt.Errorf("decoding json column: %w", err)
	}
	return true, nil
}
