package storage_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/team-calendar/backend/internal/apperr"
	"github.com/team-calendar/backend/internal/storage"
	"github.com/team-calendar/backend/internal/storage/models"
	"github.com/team-calendar/backend/internal/storage/storagetest"
)

func strPtr(s string) *string { return &s }

func seedCalendar(t *testing.T, db *storage.DB) (*models.User, *models.Calendar) {
	t.Helper()
	ctx := context.Background()

	u := &models.User{Email: "alice@example.com"}
	require.NoError(t, storage.NewUserRepository(db).Create(ctx, u))

	cal := &models.Calendar{Title: "Work", OwnerID: u.ID}
	require.NoError(t, storage.NewCalendarRepository(db).Create(ctx, cal))
	return u, cal
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := storagetest.Open(t)

	n, err := storage.Migrate(context.Background(), db, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	migrations, err := storage.Migrations(context.Background(), db)
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	for _, m := range migrations {
		assert.NotNil(t, m.AppliedAt, m.Name)
	}
}

func TestUserEmailIsUnique(t *testing.T) {
	db := storagetest.Open(t)
	users := storage.NewUserRepository(db)
	ctx := context.Background()

	require.NoError(t, users.Create(ctx, &models.User{Email: "bob@example.com"}))
	err := users.Create(ctx, &models.User{Email: "bob@example.com"})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	got, err := users.GetByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEventRoundTripKeepsRecurrenceShape(t *testing.T) {
	db := storagetest.Open(t)
	_, cal := seedCalendar(t, db)
	events := storage.NewEventRepository(db)
	ctx := context.Background()

	start := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	e := &models.Event{
		CalendarID:   cal.ID,
		ICalUID:      strPtr("abc@calendar.app"),
		Summary:      "Standup",
		Start:        start,
		End:          start.Add(15 * time.Minute),
		Status:       models.EventStatusConfirmed,
		Transparency: models.TransparencyOpaque,
		Visibility:   models.VisibilityDefault,
		Recurrence:   &models.Recurrence{Rules: []string{"RRULE:FREQ=DAILY;COUNT=5"}, Wrapped: true},
	}
	require.NoError(t, events.Create(ctx, e))

	got, err := events.GetByID(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Start.Equal(start))
	require.NotNil(t, got.Recurrence)
	assert.True(t, got.Recurrence.Wrapped)
	assert.Equal(t, []string{"RRULE:FREQ=DAILY;COUNT=5"}, got.Recurrence.Rules)

	dup := *e
	dup.ID = ""
	err = events.Create(ctx, &dup)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestTransactionRollsBack(t *testing.T) {
	db := storagetest.Open(t)
	users := storage.NewUserRepository(db)
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.Transaction(ctx, func(tx *sql.Tx) error {
		require.NoError(t, users.WithTx(tx).Create(ctx, &models.User{Email: "carol@example.com"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := users.GetByEmail(ctx, "carol@example.com")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDefaultRemindersRoundTrip(t *testing.T) {
	db := storagetest.Open(t)
	u, cal := seedCalendar(t, db)
	cals := storage.NewCalendarRepository(db)
	ctx := context.Background()

	require.NoError(t, cals.CreateListEntry(ctx, &models.CalendarListEntry{
		UserID: u.ID, CalendarID: cal.ID, AccessRole: models.RoleOwner, IsPrimary: true,
	}))

	ten := 10
	require.NoError(t, cals.SetDefaultReminders(ctx, u.ID, cal.ID, []models.DefaultReminder{
		{Method: models.ReminderMethodEmail, Minutes: &ten},
	}))

	entry, err := cals.GetPrimaryListEntry(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Len(t, entry.DefaultReminders, 1)
	assert.Equal(t, 10, *entry.DefaultReminders[0].Minutes)

	err = cals.SetDefaultReminders(ctx, "missing", cal.ID, nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestNotificationLogFilter(t *testing.T) {
	db := storagetest.Open(t)
	reminders := storage.NewReminderRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, id := range []string{"e1", "e1", "e2"} {
		require.NoError(t, reminders.LogNotification(ctx, &models.NotificationLog{
			EventID: id, ReminderMethod: "popup", ScheduledTime: now, SentTime: now,
		}))
	}

	logs, err := reminders.ListLogs(ctx, storage.LogFilter{EventID: "e1"})
	require.NoError(t, err)
	assert.Len(t, logs, 2)

	logs, err = reminders.ListLogs(ctx, storage.LogFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "e2", logs[0].EventID)
}
