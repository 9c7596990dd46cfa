package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/team-calendar/backend/internal/apperr"
	"github.com/team-calendar/backend/internal/storage/models"
)

// EventRepository provides data access for event copies and their rosters.
type EventRepository struct {
	BaseRepository
}

// NewEventRepository creates a new event repository.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// WithTx returns a copy of the repository that runs on tx.
func (r *EventRepository) WithTx(tx *sql.Tx) *EventRepository {
	return &EventRepository{BaseRepository: r.bind(tx)}
}

const eventColumns = `
	id, calendar_id, ical_uid, summary, description, location, start_time, end_time,
	is_all_day, status, transparency, visibility, color_id, recurrence,
	creator_id, organizer_id, created_at, updated_at`

func scanEvent(s interface{ Scan(...any) error }, e *models.Event) error {
	var recurrence sql.NullString
	if err := s.Scan(
		&e.ID, &e.CalendarID, &e.ICalUID, &e.Summary, &e.Description, &e.Location,
		&e.Start, &e.End, &e.IsAllDay, &e.Status, &e.Transparency, &e.Visibility,
		&e.ColorID, &recurrence, &e.CreatorID, &e.OrganizerID, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return err
	}
	e.Start, e.End = e.Start.UTC(), e.End.UTC()

	var rec models.Recurrence
	ok, err := decodeJSON(recurrence, &rec)
	if err != nil {
		return err
	}
	if ok {
		e.Recurrence = &rec
	}
	return nil
}

func (r *EventRepository) queryEvents(ctx context.Context, where string, args ...any) ([]models.Event, error) {
	rows, err := r.Q().QueryContext(ctx, "SELECT"+eventColumns+" FROM events "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var e models.Event
		if err := scanEvent(rows, &e); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// Create inserts a new event copy. A calendar holds at most one copy per iCalUID.
func (r *EventRepository) Create(ctx context.Context, e *models.Event) error {
	if e.ID == "" {
		e.ID = GenerateID()
	}
	e.CreatedAt = r.Now()
	e.UpdatedAt = e.CreatedAt

	recurrence, err := encodeJSON(e.Recurrence, e.Recurrence == nil)
	if err != nil {
		return err
	}

	_, err = r.Q().ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, e.CalendarID, e.ICalUID, e.Summary, e.Description, e.Location,
		e.Start.UTC(), e.End.UTC(), e.IsAllDay, e.Status, e.Transparency, e.Visibility,
		e.ColorID, recurrence, e.CreatorID, e.OrganizerID, e.CreatedAt, e.UpdatedAt,
	)
	if IsUniqueViolation(err) {
		return apperr.Conflict("calendar %s already holds event %s", e.CalendarID, e.UID())
	}
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}

	return nil
}

// GetByID retrieves an event copy by its ID.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*models.Event, error) {
	e := &models.Event{}

	row := r.Q().QueryRowContext(ctx, "SELECT"+eventColumns+" FROM events WHERE id = ?", id)
	err := scanEvent(row, e)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying event: %w", err)
	}

	return e, nil
}

// ListByICalUID retrieves every copy sharing an iCalUID.
func (r *EventRepository) ListByICalUID(ctx context.Context, uid string) ([]models.Event, error) {
	return r.queryEvents(ctx, "WHERE ical_uid = ? ORDER BY created_at, id", uid)
}

// GetByCalendarAndUID retrieves the copy of uid held by a calendar.
func (r *EventRepository) GetByCalendarAndUID(ctx context.Context, calendarID, uid string) (*models.Event, error) {
	events, err := r.queryEvents(ctx, "WHERE calendar_id = ? AND ical_uid = ?", calendarID, uid)
	if err != nil || len(events) == 0 {
		return nil, err
	}
	return &events[0], nil
}

// ListByCalendar retrieves all events in a calendar ordered by start time.
func (r *EventRepository) ListByCalendar(ctx context.Context, calendarID string) ([]models.Event, error) {
	return r.queryEvents(ctx, "WHERE calendar_id = ? ORDER BY start_time, id", calendarID)
}

// ListOwnedIDs returns the IDs of every event in calendars owned by the user.
func (r *EventRepository) ListOwnedIDs(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := r.Q().QueryContext(ctx, `
		SELECT e.id FROM events e JOIN calendars c ON c.id = e.calendar_id
		WHERE c.owner_id = ? ORDER BY e.id
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying owned events: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning event id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListActive retrieves every event that is not cancelled.
func (r *EventRepository) ListActive(ctx context.Context) ([]models.Event, error) {
	return r.queryEvents(ctx, "WHERE status != ? ORDER BY start_time, id", models.EventStatusCancelled)
}

// Update writes the mutable fields of an event copy. Identity fields
// (id, calendar, iCalUID, created_at) are never changed.
func (r *EventRepository) Update(ctx context.Context, e *models.Event) error {
	e.UpdatedAt = r.Now()

	recurrence, err := encodeJSON(e.Recurrence, e.Recurrence == nil)
	if err != nil {
		return err
	}

	result, err := r.Q().ExecContext(ctx, `
		UPDATE events SET
			summary = ?, description = ?, location = ?, start_time = ?, end_time = ?,
			is_all_day = ?, status = ?, transparency = ?, visibility = ?, color_id = ?,
			recurrence = ?, updated_at = ?
		WHERE id = ?
	`,
		e.Summary, e.Description, e.Location, e.Start.UTC(), e.End.UTC(),
		e.IsAllDay, e.Status, e.Transparency, e.Visibility, e.ColorID,
		recurrence, e.UpdatedAt, e.ID,
	)
	if err != nil {
		return fmt.Errorf("updating event: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return apperr.NotFound("event", e.ID)
	}

	return nil
}

// Delete removes an event copy with its roster and reminders.
func (r *EventRepository) Delete(ctx context.Context, id string) error {
	result, err := r.Q().ExecContext(ctx, "DELETE FROM events WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting event: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return apperr.NotFound("event", id)
	}

	return nil
}

const attendeeColumns = `
	id, event_id, user_id, email, display_name, response_status, is_organizer,
	is_optional, created_at, updated_at`

// AddAttendee inserts a roster entry. An email appears at most once per event.
func (r *EventRepository) AddAttendee(ctx context.Context, a *models.EventAttendee) error {
	a.CreatedAt = r.Now()
	a.UpdatedAt = a.CreatedAt
	if a.ResponseStatus == "" {
		a.ResponseStatus = models.ResponseNeedsAction
	}

	result, err := r.Q().ExecContext(ctx, `
		INSERT INTO event_attendees (
			event_id, user_id, email, display_name, response_status, is_organizer,
			is_optional, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.EventID, a.UserID, a.Email, a.DisplayName, a.ResponseStatus, a.IsOrganizer,
		a.IsOptional, a.CreatedAt, a.UpdatedAt,
	)
	if IsUniqueViolation(err) {
		return apperr.Conflict("%s is already an attendee of event %s", a.Email, a.EventID)
	}
	if err != nil {
		return fmt.Errorf("inserting attendee: %w", err)
	}

	a.ID, _ = result.LastInsertId()
	return nil
}

// ListAttendees retrieves the roster of an event copy, organizer first.
func (r *EventRepository) ListAttendees(ctx context.Context, eventID string) ([]models.EventAttendee, error) {
	rows, err := r.Q().QueryContext(ctx, `
		SELECT`+attendeeColumns+`
		FROM event_attendees WHERE event_id = ?
		ORDER BY is_organizer DESC, id
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("querying attendees: %w", err)
	}
	defer rows.Close()

	var attendees []models.EventAttendee
	for rows.Next() {
		var a models.EventAttendee
		if err := rows.Scan(
			&a.ID, &a.EventID, &a.UserID, &a.Email, &a.DisplayName, &a.ResponseStatus,
			&a.IsOrganizer, &a.IsOptional, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning attendee: %w", err)
		}
		attendees = append(attendees, a)
	}

	return attendees, rows.Err()
}

// GetAttendee retrieves one roster entry by email.
func (r *EventRepository) GetAttendee(ctx context.Context, eventID, email string) (*models.EventAttendee, error) {
	a := &models.EventAttendee{}

	err := r.Q().QueryRowContext(ctx, `
		SELECT`+attendeeColumns+`
		FROM event_attendees WHERE event_id = ? AND email = ?
	`, eventID, email).Scan(
		&a.ID, &a.EventID, &a.UserID, &a.Email, &a.DisplayName, &a.ResponseStatus,
		&a.IsOrganizer, &a.IsOptional, &a.CreatedAt, &a.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying attendee: %w", err)
	}

	return a, nil
}

// SetResponseStatus updates one attendee's response on one copy.
func (r *EventRepository) SetResponseStatus(ctx context.Context, eventID, email, status string) error {
	result, err := r.Q().ExecContext(ctx, `
		UPDATE event_attendees SET response_status = ?, updated_at = ?
		WHERE event_id = ? AND email = ?
	`, status, r.Now(), eventID, email)
	if err != nil {
		return fmt.Errorf("updating attendee response: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return apperr.NotFound("attendee", email)
	}

	return nil
}

// RenameAttendee rewrites the email on every roster entry linked to a user.
func (r *EventRepository) RenameAttendee(ctx context.Context, userID, email string) error {
	_, err := r.Q().ExecContext(ctx, `
		UPDATE event_attendees SET email = ?, updated_at = ? WHERE user_id = ?
	`, email, r.Now(), userID)
	if IsUniqueViolation(err) {
		return apperr.Conflict("%s is already on the roster of an event the user attends", email)
	}
	if err != nil {
		return fmt.Errorf("renaming attendee: %w", err)
	}
	return nil
}
