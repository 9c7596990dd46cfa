package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/team-calendar/backend/internal/storage/models"
)

// ReminderRepository provides data access for reminder overrides and the
// notification log.
type ReminderRepository struct {
	BaseRepository
}

// NewReminderRepository creates a new reminder repository.
func NewReminderRepository(db *DB) *ReminderRepository {
	return &ReminderRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// WithTx returns a copy of the repository that runs on tx.
func (r *ReminderRepository) WithTx(tx *sql.Tx) *ReminderRepository {
	return &ReminderRepository{BaseRepository: r.bind(tx)}
}

// ListByEvent retrieves the reminder overrides of an event.
func (r *ReminderRepository) ListByEvent(ctx context.Context, eventID string) ([]models.Reminder, error) {
	rows, err := r.Q().QueryContext(ctx, `
		SELECT id, event_id, method, minutes_before, created_at
		FROM reminders WHERE event_id = ?
		ORDER BY minutes_before DESC, id
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("querying reminders: %w", err)
	}
	defer rows.Close()

	var reminders []models.Reminder
	for rows.Next() {
		var rem models.Reminder
		if err := rows.Scan(&rem.ID, &rem.EventID, &rem.Method, &rem.MinutesBefore, &rem.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning reminder: %w", err)
		}
		reminders = append(reminders, rem)
	}

	return reminders, rows.Err()
}

// Replace swaps the full set of overrides on an event.
func (r *ReminderRepository) Replace(ctx context.Context, eventID string, reminders []models.Reminder) error {
	if _, err := r.Q().ExecContext(ctx, "DELETE FROM reminders WHERE event_id = ?", eventID); err != nil {
		return fmt.Errorf("deleting reminders: %w", err)
	}

	now := r.Now()
	for i := range reminders {
		rem := &reminders[i]
		rem.EventID = eventID
		rem.CreatedAt = now
		result, err := r.Q().ExecContext(ctx, `
			INSERT INTO reminders (event_id, method, minutes_before, created_at)
			VALUES (?, ?, ?, ?)
		`, rem.EventID, rem.Method, rem.MinutesBefore, rem.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting reminder: %w", err)
		}
		rem.ID, _ = result.LastInsertId()
	}

	return nil
}

// LogNotification appends a delivered notification to the log.
func (r *ReminderRepository) LogNotification(ctx context.Context, n *models.NotificationLog) error {
	n.CreatedAt = r.Now()

	result, err := r.Q().ExecContext(ctx, `
		INSERT INTO notification_logs (
			event_id, user_id, reminder_method, minutes_before, scheduled_time, sent_time,
			event_summary, event_start, message, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		n.EventID, n.UserID, n.ReminderMethod, n.MinutesBefore, n.ScheduledTime.UTC(),
		n.SentTime.UTC(), n.EventSummary, n.EventStart, n.Message, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting notification log: %w", err)
	}

	n.ID, _ = result.LastInsertId()
	return nil
}

// LogFilter narrows a notification log query. Zero values match everything.
type LogFilter struct {
	EventID string
	UserID  string
	Limit   int
}

// ListLogs retrieves notification log rows, newest first.
func (r *ReminderRepository) ListLogs(ctx context.Context, f LogFilter) ([]models.NotificationLog, error) {
	var (
		where []string
		args  []any
	)
	if f.EventID != "" {
		where = append(where, "event_id = ?")
		args = append(args, f.EventID)
	}
	if f.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}

	query := `
		SELECT id, event_id, user_id, reminder_method, minutes_before, scheduled_time,
		       sent_time, event_summary, event_start, message, created_at
		FROM notification_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := r.Q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying notification logs: %w", err)
	}
	defer rows.Close()

	var logs []models.NotificationLog
	for rows.Next() {
		var n models.NotificationLog
		if err := rows.Scan(
			&n.ID, &n.EventID, &n.UserID, &n.ReminderMethod, &n.MinutesBefore, &n.ScheduledTime,
			&n.SentTime, &n.EventSummary, &n.EventStart, &n.Message, &n.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning notification log: %w", err)
		}
		logs = append(logs, n)
	}

	return logs, rows.Err()
}
