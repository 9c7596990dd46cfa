// Package reminder resolves the effective reminders of events and fires
// them as one-shot jobs that append to the notification log.
package reminder

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/team-calendar/backend/internal/apperr"
	"github.com/team-calendar/backend/internal/storage"
	"github.com/team-calendar/backend/internal/storage/models"
)

// DefaultMinutes is used for a calendar default reminder with no minutes.
const DefaultMinutes = 30

// Scheduler runs keyed one-shot jobs. JobScheduler is the production
// implementation.
type Scheduler interface {
	Schedule(id string, at time.Time, fn func())
	Cancel(id string) bool
	CancelPrefix(prefix string) int
	Jobs() []Job
}

// Notifier is told about every notification written by a fired reminder.
type Notifier interface {
	ReminderFired(n *models.NotificationLog)
}

// Entry is one resolved reminder.
type Entry struct {
	Method  string `json:"method"`
	Minutes int    `json:"minutes"`
}

// JobID returns the job key of a reminder.
func JobID(eventID, method string, minutes int) string {
	return fmt.Sprintf("%s%s_%d", jobPrefix(eventID), method, minutes)
}

func jobPrefix(eventID string) string {
	return "reminder_" + eventID + "_"
}

// Options configures a Service.
type Options struct {
	// TestMode reads reminder offsets as seconds instead of minutes.
	TestMode bool
	Notifier Notifier
	Logger   *slog.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Service schedules reminders for events.
type Service struct {
	db        *storage.DB
	events    *storage.EventRepository
	calendars *storage.CalendarRepository
	reminders *storage.ReminderRepository
	jobs      Scheduler
	notifier  Notifier
	testMode  bool
	now       func() time.Time
	logger    *slog.Logger
}

// NewService creates a reminder service that runs jobs on jobs.
func NewService(db *storage.DB, jobs Scheduler, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		db:        db,
		events:    storage.NewEventRepository(db),
		calendars: storage.NewCalendarRepository(db),
		reminders: storage.NewReminderRepository(db),
		jobs:      jobs,
		notifier:  opts.Notifier,
		testMode:  opts.TestMode,
		now:       now,
		logger:    logger.With("component", "reminder"),
	}
}

// Effective resolves the reminders that apply to an event. Event-level
// reminders replace the calendar defaults entirely. Without any, the
// defaults on the calendar owner's list entry apply. Otherwise there are none.
func (s *Service) Effective(ctx context.Context, e *models.Event) ([]Entry, error) {
	overrides, err := s.reminders.ListByEvent(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	if len(overrides) > 0 {
		entries := make([]Entry, len(overrides))
		for i, r := range overrides {
			entries[i] = Entry{Method: r.Method, Minutes: r.MinutesBefore}
		}
		return entries, nil
	}

	cal, err := s.calendars.GetByID(ctx, e.CalendarID)
	if err != nil || cal == nil {
		return nil, err
	}
	listEntry, err := s.calendars.GetListEntry(ctx, cal.OwnerID, cal.ID)
	if err != nil || listEntry == nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(listEntry.DefaultReminders))
	for _, d := range listEntry.DefaultReminders {
		entry := Entry{Method: d.Method, Minutes: DefaultMinutes}
		if entry.Method == "" {
			entry.Method = models.ReminderMethodPopup
		}
		if d.Minutes != nil {
			entry.Minutes = *d.Minutes
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *Service) offset(minutes int) time.Duration {
	if s.testMode {
		return time.Duration(minutes) * time.Second
	}
	return time.Duration(minutes) * time.Minute
}

// Schedule registers jobs for every effective reminder of an event whose
// fire time is still in the future, and returns how many were scheduled.
// Jobs already pending under the same key are replaced.
func (s *Service) Schedule(ctx context.Context, eventID string) (int, error) {
	e, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return 0, err
	}
	if e == nil {
		return 0, apperr.NotFound("event", eventID)
	}
	if e.Status == models.EventStatusCancelled {
		return 0, nil
	}

	entries, err := s.Effective(ctx, e)
	if err != nil {
		return 0, err
	}

	var ownerID *string
	if cal, err := s.calendars.GetByID(ctx, e.CalendarID); err == nil && cal != nil {
		ownerID = &cal.OwnerID
	}

	now := s.now()
	scheduled := 0
	for _, entry := range entries {
		fireAt := e.Start.Add(-s.offset(entry.Minutes))
		if !fireAt.After(now) {
			continue
		}

		n := models.NotificationLog{
			EventID:        e.ID,
			UserID:         ownerID,
			ReminderMethod: entry.Method,
			MinutesBefore:  entry.Minutes,
			ScheduledTime:  fireAt,
			EventSummary:   &e.Summary,
			EventStart:     &e.Start,
		}
		s.jobs.Schedule(JobID(e.ID, entry.Method, entry.Minutes), fireAt, func() {
			s.fire(n)
		})
		scheduled++
	}

	if scheduled > 0 {
		s.logger.Debug("reminders scheduled", "event_id", e.ID, "count", scheduled)
	}
	return scheduled, nil
}

// Reschedule drops every pending job of the event and schedules again from
// the current reminder configuration.
func (s *Service) Reschedule(ctx context.Context, eventID string) (int, error) {
	s.Cancel(eventID)
	return s.Schedule(ctx, eventID)
}

// RescheduleCalendar reschedules the upcoming events of a calendar that
// follow its default reminders. It is run after the defaults change.
// Events with their own reminders are left alone.
func (s *Service) RescheduleCalendar(ctx context.Context, calendarID string) (int, error) {
	events, err := s.events.ListByCalendar(ctx, calendarID)
	if err != nil {
		return 0, err
	}

	now := s.now()
	total := 0
	for _, e := range events {
		if e.Status == models.EventStatusCancelled || !e.Start.After(now) {
			continue
		}
		overrides, err := s.reminders.ListByEvent(ctx, e.ID)
		if err != nil {
			return total, err
		}
		if len(overrides) > 0 {
			continue
		}
		n, err := s.Reschedule(ctx, e.ID)
		if err != nil {
			s.logger.Warn("failed to reschedule reminders", "event_id", e.ID, "error", err)
			continue
		}
		total += n
	}
	return total, nil
}

// Cancel drops every pending job of the event and returns how many there
// were. Cancelling an event with no jobs is a no-op.
func (s *Service) Cancel(eventID string) int {
	return s.jobs.CancelPrefix(jobPrefix(eventID))
}

// Jobs returns the pending reminder jobs.
func (s *Service) Jobs() []Job {
	return s.jobs.Jobs()
}

// fire writes the notification. Failures are logged and never propagate so
// that later jobs keep firing.
func (s *Service) fire(n models.NotificationLog) {
	n.SentTime = s.now().UTC()
	unit := "minute"
	if n.MinutesBefore != 1 {
		unit = "minutes"
	}
	msg := fmt.Sprintf("Reminder: '%s' starts in %d %s at %s",
		*n.EventSummary, n.MinutesBefore, unit, n.EventStart.Format("2006-01-02 15:04"))
	n.Message = &msg

	if err := s.reminders.LogNotification(context.Background(), &n); err != nil {
		s.logger.Error("failed to record notification", "event_id", n.EventID, "error", err)
		return
	}

	s.logger.Info("notification sent", "event_id", n.EventID,
		"method", n.ReminderMethod, "minutes_before", n.MinutesBefore)
	if s.notifier != nil {
		s.notifier.ReminderFired(&n)
	}
}

// SetEventReminders replaces the event-level reminders and reschedules.
// An empty list removes the override so calendar defaults apply again.
func (s *Service) SetEventReminders(ctx context.Context, eventID string, entries []Entry) ([]models.Reminder, error) {
	rows := make([]models.Reminder, 0, len(entries))
	for _, entry := range entries {
		if entry.Method != models.ReminderMethodPopup && entry.Method != models.ReminderMethodEmail {
			return nil, apperr.Validation("invalid reminder method %q", entry.Method)
		}
		if entry.Minutes < 0 {
			return nil, apperr.Validation("reminder minutes must not be negative")
		}
		rows = append(rows, models.Reminder{Method: entry.Method, MinutesBefore: entry.Minutes})
	}

	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		e, err := s.events.WithTx(tx).GetByID(ctx, eventID)
		if err != nil {
			return err
		}
		if e == nil {
			return apperr.NotFound("event", eventID)
		}
		return s.reminders.WithTx(tx).Replace(ctx, eventID, rows)
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.Reschedule(ctx, eventID); err != nil {
		s.logger.Warn("failed to reschedule reminders", "event_id", eventID, "error", err)
	}
	return rows, nil
}

// Reminders returns the event-level reminders of an event.
func (s *Service) Reminders(ctx context.Context, eventID string) ([]models.Reminder, error) {
	e, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, apperr.NotFound("event", eventID)
	}
	return s.reminders.ListByEvent(ctx, eventID)
}

// Logs returns notification log rows matching the filter.
func (s *Service) Logs(ctx context.Context, f storage.LogFilter) ([]models.NotificationLog, error) {
	return s.reminders.ListLogs(ctx, f)
}

// Restore schedules reminders for every event that has not started yet.
// It is run once at startup since pending jobs live only in memory.
func (s *Service) Restore(ctx context.Context) (int, error) {
	events, err := s.events.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now()
	total := 0
	for _, e := range events {
		if !e.Start.After(now) {
			continue
		}
		n, err := s.Schedule(ctx, e.ID)
		if err != nil {
			s.logger.Warn("failed to restore reminders", "event_id", e.ID, "error", err)
			continue
		}
		total += n
	}

	s.logger.Info("reminders restored", "events", len(events), "jobs", total)
	return total, nil
}
