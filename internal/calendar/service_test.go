package calendar_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/team-calendar/backend/internal/apperr"
	"github.com/team-calendar/backend/internal/calendar"
	"github.com/team-calendar/backend/internal/storage"
	"github.com/team-calendar/backend/internal/storage/models"
	"github.com/team-calendar/backend/internal/storage/storagetest"
)

func intPtr(n int) *int { return &n }

func TestCreateUser(t *testing.T) {
	db := storagetest.Open(t)
	svc := calendar.NewService(db, nil)
	ctx := context.Background()

	u, err := svc.CreateUser(ctx, " ada@example.com ", nil)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", u.Email)

	got, err := svc.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)

	_, err = svc.CreateUser(ctx, "ada@example.com", nil)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = svc.CreateUser(ctx, "not-an-email", nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCreateCalendarMarksFirstAsPrimary(t *testing.T) {
	db := storagetest.Open(t)
	svc := calendar.NewService(db, nil)
	ctx := context.Background()

	u, err := svc.CreateUser(ctx, "ada@example.com", nil)
	require.NoError(t, err)

	first, err := svc.CreateCalendar(ctx, u.ID, calendar.CalendarInput{Title: "Home"})
	require.NoError(t, err)
	assert.Equal(t, "UTC", first.Timezone)

	second, err := svc.CreateCalendar(ctx, u.ID, calendar.CalendarInput{Title: "Work", Timezone: "Europe/Berlin"})
	require.NoError(t, err)

	list, err := svc.ListForUser(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)

	primary := map[string]bool{}
	for _, entry := range list {
		primary[entry.CalendarID] = entry.IsPrimary
		assert.Equal(t, models.RoleOwner, entry.AccessRole)
	}
	assert.True(t, primary[first.ID])
	assert.False(t, primary[second.ID])

	rule, err := storage.NewACLRepository(db).GetByGrantee(ctx, first.ID, u.Email)
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, models.RoleOwner, rule.Role)
}

func TestCreateCalendarValidation(t *testing.T) {
	db := storagetest.Open(t)
	svc := calendar.NewService(db, nil)
	ctx := context.Background()

	u, err := svc.CreateUser(ctx, "ada@example.com", nil)
	require.NoError(t, err)

	_, err = svc.CreateCalendar(ctx, u.ID, calendar.CalendarInput{Title: " "})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.CreateCalendar(ctx, u.ID, calendar.CalendarInput{Title: "X", Timezone: "Mars/Olympus"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.CreateCalendar(ctx, "missing", calendar.CalendarInput{Title: "X"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestEnsurePrimaryCreatesOnce(t *testing.T) {
	db := storagetest.Open(t)
	svc := calendar.NewService(db, nil)
	ctx := context.Background()

	u, err := svc.CreateUser(ctx, "grace@example.com", strPtr("Grace"))
	require.NoError(t, err)

	var first, second string
	require.NoError(t, db.Transaction(ctx, func(tx *sql.Tx) error {
		var err error
		first, err = svc.EnsurePrimary(ctx, tx, u)
		return err
	}))
	require.NoError(t, db.Transaction(ctx, func(tx *sql.Tx) error {
		var err error
		second, err = svc.EnsurePrimary(ctx, tx, u)
		return err
	}))
	assert.Equal(t, first, second)

	cal, err := svc.GetCalendar(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "Grace's Calendar", cal.Title)
	assert.Equal(t, u.ID, cal.OwnerID)
}

func TestSetDefaultReminders(t *testing.T) {
	db := storagetest.Open(t)
	svc := calendar.NewService(db, nil)
	ctx := context.Background()

	u, err := svc.CreateUser(ctx, "ada@example.com", nil)
	require.NoError(t, err)
	cal, err := svc.CreateCalendar(ctx, u.ID, calendar.CalendarInput{Title: "Home"})
	require.NoError(t, err)

	err = svc.SetDefaultReminders(ctx, u.ID, cal.ID, []models.DefaultReminder{
		{Method: models.ReminderMethodEmail, Minutes: intPtr(60)},
		{Method: models.ReminderMethodPopup},
	})
	require.NoError(t, err)

	list, err := svc.ListForUser(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Len(t, list[0].DefaultReminders, 2)
	assert.Equal(t, 60, *list[0].DefaultReminders[0].Minutes)
	assert.Nil(t, list[0].DefaultReminders[1].Minutes)

	err = svc.SetDefaultReminders(ctx, u.ID, cal.ID, []models.DefaultReminder{{Method: "sms"}})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	err = svc.SetDefaultReminders(ctx, u.ID, cal.ID, []models.DefaultReminder{{Minutes: intPtr(-5)}})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	err = svc.SetDefaultReminders(ctx, "missing", cal.ID, nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func strPtr(s string) *string { return &s }

func TestUpdateUserMovesGrants(t *testing.T) {
	db := storagetest.Open(t)
	svc := calendar.NewService(db, nil)
	ctx := context.Background()

	owner, err := svc.CreateUser(ctx, "owner@example.com", nil)
	require.NoError(t, err)
	guest, err := svc.CreateUser(ctx, "guest@example.com", nil)
	require.NoError(t, err)
	cal, err := svc.CreateCalendar(ctx, owner.ID, calendar.CalendarInput{Title: "Team"})
	require.NoError(t, err)
	require.NoError(t, storage.NewACLRepository(db).Create(ctx, &models.CalendarACL{
		CalendarID: cal.ID, Grantee: guest.Email, Role: models.RoleReader,
	}))

	newEmail := "guest@example.org"
	name := "Guest"
	updated, err := svc.UpdateUser(ctx, guest.ID, calendar.UserUpdate{Email: &newEmail, Name: &name})
	require.NoError(t, err)
	assert.Equal(t, newEmail, updated.Email)
	assert.Equal(t, "Guest", updated.DisplayName())

	rule, err := storage.NewACLRepository(db).GetByGrantee(ctx, cal.ID, newEmail)
	require.NoError(t, err)
	assert.NotNil(t, rule)

	taken := "owner@example.com"
	_, err = svc.UpdateUser(ctx, guest.ID, calendar.UserUpdate{Email: &taken})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = svc.UpdateUser(ctx, "missing", calendar.UserUpdate{Name: &name})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeleteUserCascades(t *testing.T) {
	db := storagetest.Open(t)
	svc := calendar.NewService(db, nil)
	ctx := context.Background()

	owner, err := svc.CreateUser(ctx, "owner@example.com", nil)
	require.NoError(t, err)
	cal, err := svc.CreateCalendar(ctx, owner.ID, calendar.CalendarInput{Title: "Team"})
	require.NoError(t, err)

	start := time.Date(2030, 1, 2, 9, 0, 0, 0, time.UTC)
	e := &models.Event{
		CalendarID: cal.ID, Summary: "Sync", Start: start, End: start.Add(time.Hour),
		Status: models.EventStatusConfirmed, Transparency: models.TransparencyOpaque,
		Visibility: models.VisibilityDefault,
	}
	require.NoError(t, storage.NewEventRepository(db).Create(ctx, e))

	removed, err := svc.DeleteUser(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{e.ID}, removed)

	_, err = svc.GetCalendar(ctx, cal.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	got, err := storage.NewEventRepository(db).GetByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = svc.DeleteUser(ctx, owner.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
