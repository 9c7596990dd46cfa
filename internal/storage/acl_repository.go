package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/team-calendar/backend/internal/apperr"
	"github.com/team-calendar/backend/internal/storage/models"
)

// ACLRepository provides data access for calendar access control rules.
type ACLRepository struct {
	BaseRepository
}

// NewACLRepository creates a new ACL repository.
func NewACLRepository(db *DB) *ACLRepository {
	return &ACLRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// WithTx returns a copy of the repository that runs on tx.
func (r *ACLRepository) WithTx(tx *sql.Tx) *ACLRepository {
	return &ACLRepository{BaseRepository: r.bind(tx)}
}

// Create inserts a rule. A grantee has at most one rule per calendar.
func (r *ACLRepository) Create(ctx context.Context, a *models.CalendarACL) error {
	a.CreatedAt = r.Now()
	a.UpdatedAt = a.CreatedAt

	result, err := r.Q().ExecContext(ctx, `
		INSERT INTO calendar_acl (calendar_id, grantee, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, a.CalendarID, a.Grantee, a.Role, a.CreatedAt, a.UpdatedAt)
	if IsUniqueViolation(err) {
		return apperr.Conflict("%s already has access to calendar %s", a.Grantee, a.CalendarID)
	}
	if err != nil {
		return fmt.Errorf("inserting acl rule: %w", err)
	}

	a.ID, _ = result.LastInsertId()
	return nil
}

// GetByID retrieves a rule by ID within a calendar.
func (r *ACLRepository) GetByID(ctx context.Context, calendarID string, id int64) (*models.CalendarACL, error) {
	a := &models.CalendarACL{}

	err := r.Q().QueryRowContext(ctx, `
		SELECT id, calendar_id, grantee, role, created_at, updated_at
		FROM calendar_acl WHERE calendar_id = ? AND id = ?
	`, calendarID, id).Scan(&a.ID, &a.CalendarID, &a.Grantee, &a.Role, &a.CreatedAt, &a.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying acl rule: %w", err)
	}

	return a, nil
}

// GetByGrantee retrieves the rule for a grantee on a calendar.
func (r *ACLRepository) GetByGrantee(ctx context.Context, calendarID, grantee string) (*models.CalendarACL, error) {
	a := &models.CalendarACL{}

	err := r.Q().QueryRowContext(ctx, `
		SELECT id, calendar_id, grantee, role, created_at, updated_at
		FROM calendar_acl WHERE calendar_id = ? AND grantee = ?
	`, calendarID, grantee).Scan(&a.ID, &a.CalendarID, &a.Grantee, &a.Role, &a.CreatedAt, &a.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying acl rule: %w", err)
	}

	return a, nil
}

// ListByCalendar retrieves all rules on a calendar.
func (r *ACLRepository) ListByCalendar(ctx context.Context, calendarID string) ([]models.CalendarACL, error) {
	rows, err := r.Q().QueryContext(ctx, `
		SELECT id, calendar_id, grantee, role, created_at, updated_at
		FROM calendar_acl WHERE calendar_id = ?
		ORDER BY id
	`, calendarID)
	if err != nil {
		return nil, fmt.Errorf("querying acl rules: %w", err)
	}
	defer rows.Close()

	var rules []models.CalendarACL
	for rows.Next() {
		var a models.CalendarACL
		if err := rows.Scan(&a.ID, &a.CalendarID, &a.Grantee, &a.Role, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning acl rule: %w", err)
		}
		rules = append(rules, a)
	}

	return rules, rows.Err()
}

// Delete removes a rule by ID.
func (r *ACLRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.Q().ExecContext(ctx, "DELETE FROM calendar_acl WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting acl rule: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return apperr.NotFound("acl rule", fmt.Sprint(id))
	}

	return nil
}

// RenameGrantee moves every rule granted to one email onto another.
func (r *ACLRepository) RenameGrantee(ctx context.Context, from, to string) error {
	_, err := r.Q().ExecContext(ctx, `
		UPDATE calendar_acl SET grantee = ?, updated_at = ? WHERE grantee = ?
	`, to, r.Now(), from)
	if IsUniqueViolation(err) {
		return apperr.Conflict("%s already holds a rule on a calendar shared with %s", to, from)
	}
	if err != nil {
		return fmt.Errorf("renaming acl grantee: %w", err)
	}
	return nil
}
