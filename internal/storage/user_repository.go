package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/team-calendar/backend/internal/apperr"
	"github.com/team-calendar/backend/internal/storage/models"
)

// UserRepository provides data access for users.
type UserRepository struct {
	BaseRepository
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// WithTx returns a copy of the repository that runs on tx.
func (r *UserRepository) WithTx(tx *sql.Tx) *UserRepository {
	return &UserRepository{BaseRepository: r.bind(tx)}
}

// Create inserts a new user. Emails are unique.
func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = GenerateID()
	}
	u.CreatedAt = r.Now()
	u.UpdatedAt = u.CreatedAt

	_, err := r.Q().ExecContext(ctx, `
		INSERT INTO users (id, email, name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, u.ID, u.Email, u.Name, u.CreatedAt, u.UpdatedAt)
	if IsUniqueViolation(err) {
		return apperr.Conflict("user with email %s already exists", u.Email)
	}
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.get(ctx, "id", id)
}

// GetByEmail retrieves a user by email address.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.get(ctx, "email", email)
}

func (r *UserRepository) get(ctx context.Context, column, value string) (*models.User, error) {
	u := &models.User{}

	err := r.Q().QueryRowContext(ctx,
		"SELECT id, email, name, created_at, updated_at FROM users WHERE "+column+" = ?", value,
	).Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt, &u.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	return u, nil
}

// List retrieves users ordered by email. A limit of zero or less means no
// limit.
func (r *UserRepository) List(ctx context.Context, offset, limit int) ([]models.User, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.Q().QueryContext(ctx, `
		SELECT id, email, name, created_at, updated_at FROM users
		ORDER BY email LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

// Update writes a user's email and name.
func (r *UserRepository) Update(ctx context.Context, u *models.User) error {
	u.UpdatedAt = r.Now()

	result, err := r.Q().ExecContext(ctx, `
		UPDATE users SET email = ?, name = ?, updated_at = ? WHERE id = ?
	`, u.Email, u.Name, u.UpdatedAt, u.ID)
	if IsUniqueViolation(err) {
		return apperr.Conflict("user with email %s already exists", u.Email)
	}
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return apperr.NotFound("user", u.ID)
	}
	return nil
}

// Delete removes a user. Owned calendars, their events and the user's
// calendar list go with it.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	result, err := r.Q().ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return apperr.NotFound("user", id)
	}
	return nil
}
