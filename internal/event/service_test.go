package event

import (
	"context"
	"sync"
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

type recordingReminders struct {
	mu          sync.Mutex
	rescheduled []string
	cancelled   []string
}

func (r *recordingReminders) Reschedule(_ context.Context, eventID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rescheduled = append(r.rescheduled, eventID)
	return 1, nil
}

func (r *recordingReminders) Cancel(eventID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = append(r.cancelled, eventID)
	return 1
}

type recordingPublisher struct {
	created   []string
	updated   []string
	deleted   []string
	responses []string
}

func (p *recordingPublisher) EventCreated(e *models.Event, _ []string) {
	p.created = append(p.created, e.ID)
}

func (p *recordingPublisher) EventUpdated(e *models.Event, _ []string) {
	p.updated = append(p.updated, e.ID)
}

func (p *recordingPublisher) EventDeleted(e *models.Event) {
	p.deleted = append(p.deleted, e.ID)
}

func (p *recordingPublisher) AttendeeResponded(_ *models.Event, _ *models.EventAttendee, _, message string) {
	p.responses = append(p.responses, message)
}

type fixture struct {
	db        *storage.DB
	calendars *calendar.Service
	svc       *Service
	reminders *recordingReminders
	publisher *recordingPublisher

	alice    *models.User
	bob      *models.User
	aliceCal *models.Calendar
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db := storagetest.Open(t)
	calendars := calendar.NewService(db, nil)

	f := &fixture{
		db:        db,
		calendars: calendars,
		reminders: &recordingReminders{},
		publisher: &recordingPublisher{},
	}
	f.svc = NewService(db, calendars, Options{
		ICalDomain: "test.local",
		Reminders:  f.reminders,
		Publisher:  f.publisher,
	})

	var err error
	f.alice, err = calendars.CreateUser(ctx, "alice@example.com", strPtr("Alice"))
	require.NoError(t, err)
	f.bob, err = calendars.CreateUser(ctx, "bob@example.com", nil)
	require.NoError(t, err)
	f.aliceCal, err = calendars.CreateCalendar(ctx, f.alice.ID, calendar.CalendarInput{Title: "Work"})
	require.NoError(t, err)

	return f
}

func strPtr(s string) *string { return &s }

var (
	jan6  = time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)
	jan15 = time.Date(2025, 1, 15, 14, 0, 0, 0, time.UTC)
)

func meeting(attendees ...string) CreateInput {
	in := CreateInput{
		Summary: "Planning",
		Start:   jan15,
		End:     jan15.Add(time.Hour),
	}
	for _, email := range attendees {
		in.Attendees = append(in.Attendees, AttendeeInput{Email: email})
	}
	return in
}

func TestCreatePropagatesToInviteePrimaryCalendars(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e, err := f.svc.Create(ctx, f.aliceCal.ID, f.alice.Email, meeting("bob@example.com", "carol@elsewhere.org"))
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9a-f-]{36}@test\.local$`, e.UID())
	assert.Equal(t, models.EventStatusConfirmed, e.Status)
	assert.Equal(t, models.TransparencyOpaque, e.Transparency)
	require.NotNil(t, e.OrganizerID)
	assert.Equal(t, f.alice.ID, *e.OrganizerID)

	copies, err := f.svc.Copies(ctx, e.UID())
	require.NoError(t, err)
	require.Len(t, copies, 2, "carol has no account and gets no copy")

	bobEntry, err := storage.NewCalendarRepository(f.db).GetPrimaryListEntry(ctx, f.bob.ID)
	require.NoError(t, err)
	require.NotNil(t, bobEntry, "bob's primary calendar is created on demand")

	bobCopy, err := f.svc.GetByICalUID(ctx, e.UID(), bobEntry.CalendarID)
	require.NoError(t, err)
	assert.Equal(t, e.Summary, bobCopy.Summary)
	assert.True(t, bobCopy.Start.Equal(e.Start))

	for _, c := range copies {
		details, err := f.svc.Get(ctx, c.ID)
		require.NoError(t, err)
		require.Len(t, details.Attendees, 3)

		organizer := details.Attendees[0]
		assert.Equal(t, "alice@example.com", organizer.Email)
		assert.True(t, organizer.IsOrganizer)
		assert.Equal(t, models.ResponseAccepted, organizer.ResponseStatus)
		for _, a := range details.Attendees[1:] {
			assert.Equal(t, models.ResponseNeedsAction, a.ResponseStatus)
		}
	}

	assert.ElementsMatch(t, []string{copies[0].ID, copies[1].ID}, f.reminders.rescheduled)
	assert.Equal(t, []string{e.ID}, f.publisher.created)
}

func TestCreateCollapsesDuplicateAttendees(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e, err := f.svc.Create(ctx, f.aliceCal.ID, f.alice.Email,
		meeting("bob@example.com", "BOB@example.com", "alice@example.com"))
	require.NoError(t, err)

	details, err := f.svc.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Len(t, details.Attendees, 2)

	copies, err := f.svc.Copies(ctx, e.UID())
	require.NoError(t, err)
	assert.Len(t, copies, 2)
}

func TestCreateSkipsCopyWhenInviteeAlreadyHoldsCalendar(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bobCal, err := f.calendars.CreateCalendar(ctx, f.bob.ID, calendar.CalendarInput{Title: "Bob"})
	require.NoError(t, err)

	// alice books straight into bob's primary calendar and invites him
	e, err := f.svc.Create(ctx, bobCal.ID, f.alice.Email, meeting("bob@example.com"))
	require.NoError(t, err)

	copies, err := f.svc.Copies(ctx, e.UID())
	require.NoError(t, err)
	require.Len(t, copies, 1)
	assert.Equal(t, bobCal.ID, copies[0].CalendarID)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := meeting()
	in.End = in.Start
	_, err := f.svc.Create(ctx, f.aliceCal.ID, f.alice.Email, in)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	in = meeting()
	in.Status = "maybe"
	_, err = f.svc.Create(ctx, f.aliceCal.ID, f.alice.Email, in)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	in = meeting("")
	_, err = f.svc.Create(ctx, f.aliceCal.ID, f.alice.Email, in)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	in = meeting()
	in.Recurrence = &models.Recurrence{Rules: []string{"RRULE:FREQ=SOMETIMES"}}
	_, err = f.svc.Create(ctx, f.aliceCal.ID, f.alice.Email, in)
	assert.ErrorIs(t, err, apperr.ErrInvalidRecurrence)

	_, err = f.svc.Create(ctx, "missing", f.alice.Email, meeting())
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	events, err := storage.NewEventRepository(f.db).ListByCalendar(ctx, f.aliceCal.ID)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestUpdatePropagatesToEveryCopy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e, err := f.svc.Create(ctx, f.aliceCal.ID, f.alice.Email, meeting("bob@example.com"))
	require.NoError(t, err)
	f.reminders.rescheduled = nil

	copies, err := f.svc.Copies(ctx, e.UID())
	require.NoError(t, err)
	var bobCopyID string
	for _, c := range copies {
		if c.ID != e.ID {
			bobCopyID = c.ID
		}
	}
	require.NotEmpty(t, bobCopyID)

	// the update is issued against bob's copy and lands on alice's too
	moved := jan15.Add(2 * time.Hour)
	updated, err := f.svc.Update(ctx, bobCopyID, Update{
		Summary:  Some("Planning (moved)"),
		Start:    Some(moved),
		End:      Some(moved.Add(time.Hour)),
		Location: Some(strPtr("Room 4")),
	})
	require.NoError(t, err)
	assert.Equal(t, bobCopyID, updated.ID)

	copies, err = f.svc.Copies(ctx, e.UID())
	require.NoError(t, err)
	for _, c := range copies {
		assert.Equal(t, "Planning (moved)", c.Summary)
		assert.True(t, c.Start.Equal(moved))
		require.NotNil(t, c.Location)
		assert.Equal(t, "Room 4", *c.Location)
		assert.Equal(t, e.UID(), c.UID())
	}
	assert.Len(t, f.reminders.rescheduled, 2)
	assert.Equal(t, []string{bobCopyID}, f.publisher.updated)

	// clearing a nullable field
	_, err = f.svc.Update(ctx, e.ID, Update{Location: Some[*string](nil)})
	require.NoError(t, err)
	bobCopy, err := f.svc.Get(ctx, bobCopyID)
	require.NoError(t, err)
	assert.Nil(t, bobCopy.Location)
}

func TestUpdateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e, err := f.svc.Create(ctx, f.aliceCal.ID, f.alice.Email, meeting("bob@example.com"))
	require.NoError(t, err)

	upd := Update{Summary: Some("Retro"), Visibility: Some(models.VisibilityPrivate)}
	first, err := f.svc.Update(ctx, e.ID, upd)
	require.NoError(t, err)
	second, err := f.svc.Update(ctx, e.ID, upd)
	require.NoError(t, err)

	assert.Equal(t, first.Summary, second.Summary)
	assert.Equal(t, first.Visibility, second.Visibility)
	assert.True(t, first.Start.Equal(second.Start))
}

func TestUpdateRollsBackOnInvalidResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e, err := f.svc.Create(ctx, f.aliceCal.ID, f.alice.Email, meeting("bob@example.com"))
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, e.ID, Update{
		Summary: Some("Should not stick"),
		End:     Some(jan15.Add(-time.Hour)),
	})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.Update(ctx, e.ID, Update{
		Summary:    Some("Should not stick"),
		Recurrence: Some(&models.Recurrence{Rules: []string{"FREQ=WEEKLY;COUNT=2;UNTIL=20250301"}}),
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidRecurrence)

	copies, err := f.svc.Copies(ctx, e.UID())
	require.NoError(t, err)
	for _, c := range copies {
		assert.Equal(t, "Planning", c.Summary)
		assert.Nil(t, c.Recurrence)
	}
}

func TestUpdateRequiresIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	orphan := &models.Event{
		CalendarID:   f.aliceCal.ID,
		Summary:      "Imported",
		Start:        jan15,
		End:          jan15.Add(time.Hour),
		Status:       models.EventStatusConfirmed,
		Transparency: models.TransparencyOpaque,
		Visibility:   models.VisibilityDefault,
	}
	require.NoError(t, storage.NewEventRepository(f.db).Create(ctx, orphan))

	_, err := f.svc.Update(ctx, orphan.ID, Update{Summary: Some("Renamed")})
	assert.ErrorIs(t, err, apperr.ErrInvalidIdentity)

	_, err = f.svc.Update(ctx, "missing", Update{Summary: Some("Renamed")})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestAttendeeResponseIsBidirectional(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e, err := f.svc.Create(ctx, f.aliceCal.ID, f.alice.Email, meeting("bob@example.com"))
	require.NoError(t, err)
	copies, err := f.svc.Copies(ctx, e.UID())
	require.NoError(t, err)

	// bob answers on alice's copy; his own copy follows
	a, err := f.svc.UpdateAttendeeResponse(ctx, e.ID, "bob@example.com", models.ResponseAccepted)
	require.NoError(t, err)
	assert.Equal(t, models.ResponseAccepted, a.ResponseStatus)

	events := storage.NewEventRepository(f.db)
	for _, c := range copies {
		got, err := events.GetAttendee(ctx, c.ID, "bob@example.com")
		require.NoError(t, err)
		assert.Equal(t, models.ResponseAccepted, got.ResponseStatus)
	}

	// and back the other way, answering on his own copy
	var bobCopyID string
	for _, c := range copies {
		if c.ID != e.ID {
			bobCopyID = c.ID
		}
	}
	_, err = f.svc.UpdateAttendeeResponse(ctx, bobCopyID, "bob@example.com", models.ResponseDeclined)
	require.NoError(t, err)
	got, err := events.GetAttendee(ctx, e.ID, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.ResponseDeclined, got.ResponseStatus)

	// the organizer's own response is untouched
	organizer, err := events.GetAttendee(ctx, bobCopyID, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.ResponseAccepted, organizer.ResponseStatus)

	logs, err := storage.NewReminderRepository(f.db).ListLogs(ctx, storage.LogFilter{UserID: f.alice.ID})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.NotNil(t, logs[0].Message)
	assert.Equal(t, "bob has declined the invitation to 'Planning'", *logs[0].Message)
	assert.Equal(t, models.ReminderMethodEmail, logs[0].ReminderMethod)
	assert.Len(t, f.publisher.responses, 2)
}

func TestAttendeeResponseRepeatIsQuiet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e, err := f.svc.Create(ctx, f.aliceCal.ID, f.alice.Email, meeting("bob@example.com"))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = f.svc.UpdateAttendeeResponse(ctx, e.ID, "bob@example.com", models.ResponseTentative)
		require.NoError(t, err)
	}

	logs, err := storage.NewReminderRepository(f.db).ListLogs(ctx, storage.LogFilter{EventID: e.ID})
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestAttendeeResponseErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e, err := f.svc.Create(ctx, f.aliceCal.ID, f.alice.Email, meeting("bob@example.com"))
	require.NoError(t, err)

	_, err = f.svc.UpdateAttendeeResponse(ctx, e.ID, "bob@example.com", "perhaps")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.UpdateAttendeeResponse(ctx, e.ID, "dave@example.com", models.ResponseAccepted)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.UpdateAttendeeResponse(ctx, "missing", "bob@example.com", models.ResponseAccepted)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeleteRemovesOnlyOneCopy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e, err := f.svc.Create(ctx, f.aliceCal.ID, f.alice.Email, meeting("bob@example.com"))
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, e.ID))
	assert.Equal(t, []string{e.ID}, f.reminders.cancelled)
	assert.Equal(t, []string{e.ID}, f.publisher.deleted)

	copies, err := f.svc.Copies(ctx, e.UID())
	require.NoError(t, err)
	assert.Len(t, copies, 1)

	_, err = f.svc.Get(ctx, e.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, f.svc.Delete(ctx, e.ID), apperr.ErrNotFound)
}

func TestListInstances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	weekly := CreateInput{
		Summary:    "Standup",
		Start:      jan6,
		End:        jan6.Add(30 * time.Minute),
		Recurrence: &models.Recurrence{Rules: []string{"RRULE:FREQ=WEEKLY;COUNT=4", "EXDATE:20250120T100000Z"}},
	}
	_, err := f.svc.Create(ctx, f.aliceCal.ID, f.alice.Email, weekly)
	require.NoError(t, err)

	single, err := f.svc.Create(ctx, f.aliceCal.ID, f.alice.Email, meeting())
	require.NoError(t, err)

	cancelled := meeting()
	cancelled.Summary = "Dropped"
	cancelled.Status = models.EventStatusCancelled
	_, err = f.svc.Create(ctx, f.aliceCal.ID, f.alice.Email, cancelled)
	require.NoError(t, err)

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	instances, err := f.svc.ListInstances(ctx, f.aliceCal.ID, start, end)
	require.NoError(t, err)

	var got []string
	for _, in := range instances {
		got = append(got, in.Event.Summary+" "+in.Start.Format("01-02 15:04"))
	}
	assert.Equal(t, []string{
		"Standup 01-06 10:00",
		"Standup 01-13 10:00",
		"Planning 01-15 14:00",
		"Standup 01-27 10:00",
	}, got)
	assert.Equal(t, single.ID, instances[2].Event.ID)
	assert.True(t, instances[0].End.Equal(jan6.Add(30*time.Minute)))

	details, err := f.svc.Get(ctx, instances[0].Event.ID)
	require.NoError(t, err)
	assert.Equal(t, "Weekly, 4 times", details.RecurrenceSummary)

	// an occurrence already underway at the window start is included
	instances, err = f.svc.ListInstances(ctx, f.aliceCal.ID, jan6.Add(10*time.Minute), jan6.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.True(t, instances[0].Start.Equal(jan6))

	_, err = f.svc.ListInstances(ctx, f.aliceCal.ID, end, start)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
