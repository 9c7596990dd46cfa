package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/team-calendar/backend/internal/apperr"
	"github.com/team-calendar/backend/internal/storage/models"
)

// CalendarRepository provides data access for calendars and the per-user
// calendar list.
type CalendarRepository struct {
	BaseRepository
}

// NewCalendarRepository creates a new calendar repository.
func NewCalendarRepository(db *DB) *CalendarRepository {
	return &CalendarRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// WithTx returns a copy of the repository that runs on tx.
func (r *CalendarRepository) WithTx(tx *sql.Tx) *CalendarRepository {
	return &CalendarRepository{BaseRepository: r.bind(tx)}
}

// Create inserts a new calendar.
func (r *CalendarRepository) Create(ctx context.Context, cal *models.Calendar) error {
	cal.ID = GenerateID()
	cal.CreatedAt = r.Now()
	cal.UpdatedAt = cal.CreatedAt
	if cal.Timezone == "" {
		cal.Timezone = "UTC"
	}

	_, err := r.Q().ExecContext(ctx, `
		INSERT INTO calendars (id, title, timezone, owner_id, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		cal.ID, cal.Title, cal.Timezone, cal.OwnerID, cal.Description,
		cal.CreatedAt, cal.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting calendar: %w", err)
	}

	return nil
}

// GetByID retrieves a calendar by its ID.
func (r *CalendarRepository) GetByID(ctx context.Context, id string) (*models.Calendar, error) {
	cal := &models.Calendar{}

	err := r.Q().QueryRowContext(ctx, `
		SELECT id, title, timezone, owner_id, description, created_at, updated_at
		FROM calendars WHERE id = ?
	`, id).Scan(
		&cal.ID, &cal.Title, &cal.Timezone, &cal.OwnerID, &cal.Description,
		&cal.CreatedAt, &cal.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying calendar: %w", err)
	}

	return cal, nil
}

const listEntryColumns = `
	l.id, l.user_id, l.calendar_id, l.access_role, l.color, l.default_reminders,
	l.is_primary, l.created_at, l.updated_at`

func scanListEntry(s interface{ Scan(...any) error }, e *models.CalendarListEntry, extra ...any) error {
	var reminders sql.NullString
	dest := append([]any{
		&e.ID, &e.UserID, &e.CalendarID, &e.AccessRole, &e.Color, &reminders,
		&e.IsPrimary, &e.CreatedAt, &e.UpdatedAt,
	}, extra...)
	if err := s.Scan(dest...); err != nil {
		return err
	}
	_, err := decodeJSON(reminders, &e.DefaultReminders)
	return err
}

// CreateListEntry adds a calendar to a user's calendar list. A user can
// list a calendar at most once.
func (r *CalendarRepository) CreateListEntry(ctx context.Context, e *models.CalendarListEntry) error {
	e.CreatedAt = r.Now()
	e.UpdatedAt = e.CreatedAt

	reminders, err := encodeJSON(e.DefaultReminders, e.DefaultReminders == nil)
	if err != nil {
		return err
	}

	result, err := r.Q().ExecContext(ctx, `
		INSERT INTO calendar_list (
			user_id, calendar_id, access_role, color, default_reminders, is_primary,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.UserID, e.CalendarID, e.AccessRole, e.Color, reminders, e.IsPrimary,
		e.CreatedAt, e.UpdatedAt,
	)
	if IsUniqueViolation(err) {
		return apperr.Conflict("calendar %s is already in the list of user %s", e.CalendarID, e.UserID)
	}
	if err != nil {
		return fmt.Errorf("inserting calendar list entry: %w", err)
	}

	e.ID, _ = result.LastInsertId()
	return nil
}

// GetListEntry retrieves the list entry linking a user to a calendar.
func (r *CalendarRepository) GetListEntry(ctx context.Context, userID, calendarID string) (*models.CalendarListEntry, error) {
	e := &models.CalendarListEntry{}

	row := r.Q().QueryRowContext(ctx, `
		SELECT`+listEntryColumns+`
		FROM calendar_list l WHERE l.user_id = ? AND l.calendar_id = ?
	`, userID, calendarID)

	err := scanListEntry(row, e)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying calendar list entry: %w", err)
	}

	return e, nil
}

// GetPrimaryListEntry retrieves the entry a user has marked as primary.
func (r *CalendarRepository) GetPrimaryListEntry(ctx context.Context, userID string) (*models.CalendarListEntry, error) {
	e := &models.CalendarListEntry{}

	row := r.Q().QueryRowContext(ctx, `
		SELECT`+listEntryColumns+`
		FROM calendar_list l WHERE l.user_id = ? AND l.is_primary = 1
		ORDER BY l.id LIMIT 1
	`, userID)

	err := scanListEntry(row, e)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying primary calendar: %w", err)
	}

	return e, nil
}

// ListEntriesForUser retrieves a user's calendar list joined with the calendars.
func (r *CalendarRepository) ListEntriesForUser(ctx context.Context, userID string) ([]models.CalendarListEntryWithCalendar, error) {
	rows, err := r.Q().QueryContext(ctx, `
		SELECT`+listEntryColumns+`,
		       c.id, c.title, c.timezone, c.owner_id, c.description, c.created_at, c.updated_at
		FROM calendar_list l
		JOIN calendars c ON c.id = l.calendar_id
		WHERE l.user_id = ?
		ORDER BY l.is_primary DESC, c.title
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying calendar list: %w", err)
	}
	defer rows.Close()

	var entries []models.CalendarListEntryWithCalendar
	for rows.Next() {
		var e models.CalendarListEntryWithCalendar
		c := &e.Calendar
		if err := scanListEntry(rows, &e.CalendarListEntry,
			&c.ID, &c.Title, &c.Timezone, &c.OwnerID, &c.Description, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning calendar list entry: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// SetDefaultReminders replaces the default reminders on a list entry.
func (r *CalendarRepository) SetDefaultReminders(ctx context.Context, userID, calendarID string, reminders []models.DefaultReminder) error {
	value, err := encodeJSON(reminders, reminders == nil)
	if err != nil {
		return err
	}

	result, err := r.Q().ExecContext(ctx, `
		UPDATE calendar_list SET default_reminders = ?, updated_at = ?
		WHERE user_id = ? AND calendar_id = ?
	`, value, r.Now(), userID, calendarID)
	if err != nil {
		return fmt.Errorf("updating default reminders: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return apperr.NotFound("calendar list entry", userID+"/"+calendarID)
	}

	return nil
}
