// Package event creates events and keeps every copy of a logical event in
// step. Copies live in different calendars and share one iCalUID; fields
// and attendee responses written to one copy are written to all of them in
// the same transaction.
package event

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/team-calendar/backend/internal/apperr"
	"github.com/team-calendar/backend/internal/calendar"
	"github.com/team-calendar/backend/internal/recurrence"
	"github.com/team-calendar/backend/internal/storage"
	"github.com/team-calendar/backend/internal/storage/models"
)

// DefaultICalDomain is the domain part of generated iCalUIDs.
const DefaultICalDomain = "calendar.app"

// ReminderScheduler is told when the reminders of an event copy may need
// new fire times.
type ReminderScheduler interface {
	Reschedule(ctx context.Context, eventID string) (int, error)
	Cancel(eventID string) int
}

// Publisher is told about committed changes.
type Publisher interface {
	EventCreated(e *models.Event, copies []string)
	EventUpdated(e *models.Event, copies []string)
	EventDeleted(e *models.Event)
	AttendeeResponded(e *models.Event, a *models.EventAttendee, previous, message string)
}

// Options configures a Service.
type Options struct {
	ICalDomain   string
	MaxInstances int
	Reminders    ReminderScheduler
	Publisher    Publisher
	Logger       *slog.Logger
}

// Service implements the event lifecycle.
type Service struct {
	db            *storage.DB
	calendars     *calendar.Service
	calendarRepo  *storage.CalendarRepository
	users         *storage.UserRepository
	events        *storage.EventRepository
	notifications *storage.ReminderRepository

	domain       string
	maxInstances int
	reminders    ReminderScheduler
	publisher    Publisher
	logger       *slog.Logger
}

// NewService creates an event service.
func NewService(db *storage.DB, calendars *calendar.Service, opts Options) *Service {
	if opts.ICalDomain == "" {
		opts.ICalDomain = DefaultICalDomain
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		db:            db,
		calendars:     calendars,
		calendarRepo:  storage.NewCalendarRepository(db),
		users:         storage.NewUserRepository(db),
		events:        storage.NewEventRepository(db),
		notifications: storage.NewReminderRepository(db),
		domain:        opts.ICalDomain,
		maxInstances:  opts.MaxInstances,
		reminders:     opts.Reminders,
		publisher:     opts.Publisher,
		logger:        opts.Logger.With("component", "event"),
	}
}

// AttendeeInput is one invitee of a new event.
type AttendeeInput struct {
	Email       string  `json:"email"`
	DisplayName *string `json:"display_name,omitempty"`
	IsOptional  bool    `json:"is_optional"`
}

// CreateInput holds the fields of a new event. Empty Status, Transparency
// and Visibility take their defaults.
type CreateInput struct {
	Summary      string             `json:"summary"`
	Description  *string            `json:"description,omitempty"`
	Location     *string            `json:"location,omitempty"`
	Start        time.Time          `json:"start"`
	End          time.Time          `json:"end"`
	IsAllDay     bool               `json:"is_all_day"`
	Status       string             `json:"status,omitempty"`
	Transparency string             `json:"transparency,omitempty"`
	Visibility   string             `json:"visibility,omitempty"`
	ColorID      *int               `json:"color_id,omitempty"`
	Recurrence   *models.Recurrence `json:"recurrence,omitempty"`
	Attendees    []AttendeeInput    `json:"attendees,omitempty"`
}

func (in CreateInput) event(calendarID, uid string) *models.Event {
	e := &models.Event{
		CalendarID:   calendarID,
		ICalUID:      &uid,
		Summary:      in.Summary,
		Description:  in.Description,
		Location:     in.Location,
		Start:        in.Start.UTC(),
		End:          in.End.UTC(),
		IsAllDay:     in.IsAllDay,
		Status:       in.Status,
		Transparency: in.Transparency,
		Visibility:   in.Visibility,
		ColorID:      in.ColorID,
		Recurrence:   in.Recurrence,
	}
	if e.Status == "" {
		e.Status = models.EventStatusConfirmed
	}
	if e.Transparency == "" {
		e.Transparency = models.TransparencyOpaque
	}
	if e.Visibility == "" {
		e.Visibility = models.VisibilityDefault
	}
	return e
}

// newICalUID generates the identity shared by every copy of one event.
func (s *Service) newICalUID() string {
	return uuid.NewString() + "@" + s.domain
}

// rosterEntry is an attendee of a new event together with the user the
// email resolved to, if any.
type rosterEntry struct {
	attendee models.EventAttendee
	user     *models.User
}

// buildRoster returns the organizer followed by each distinct invitee.
// The organizer has accepted; everyone else still needs to respond.
func (s *Service) buildRoster(ctx context.Context, users *storage.UserRepository, organizerEmail string, invitees []AttendeeInput) ([]rosterEntry, error) {
	seen := map[string]bool{strings.ToLower(organizerEmail): true}

	organizer, err := users.GetByEmail(ctx, organizerEmail)
	if err != nil {
		return nil, err
	}
	roster := []rosterEntry{{
		attendee: models.EventAttendee{
			Email:          organizerEmail,
			DisplayName:    displayName(organizerEmail, nil),
			ResponseStatus: models.ResponseAccepted,
			IsOrganizer:    true,
		},
		user: organizer,
	}}

	for _, in := range invitees {
		email := strings.TrimSpace(in.Email)
		if email == "" {
			return nil, apperr.Validation("attendee email is required")
		}
		if seen[strings.ToLower(email)] {
			continue
		}
		seen[strings.ToLower(email)] = true

		user, err := users.GetByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		roster = append(roster, rosterEntry{
			attendee: models.EventAttendee{
				Email:          email,
				DisplayName:    displayName(email, in.DisplayName),
				ResponseStatus: models.ResponseNeedsAction,
				IsOptional:     in.IsOptional,
			},
			user: user,
		})
	}
	return roster, nil
}

func displayName(email string, given *string) *string {
	if given != nil && *given != "" {
		return given
	}
	name := models.LocalPart(email)
	return &name
}

// insertCopy writes one event copy with the full roster.
func insertCopy(ctx context.Context, events *storage.EventRepository, e *models.Event, roster []rosterEntry) error {
	if err := events.Create(ctx, e); err != nil {
		return err
	}
	for _, r := range roster {
		a := r.attendee
		a.EventID = e.ID
		if r.user != nil {
			a.UserID = &r.user.ID
		}
		if err := events.AddAttendee(ctx, &a); err != nil {
			return err
		}
	}
	return nil
}

// Create inserts an event into calendarID and a copy into the primary
// calendar of every invitee who is a known user, creating that calendar
// when they have none. Every copy shares one iCalUID and carries the full
// roster. Invitees without an account appear on the rosters only.
// The organizer's copy is returned.
func (s *Service) Create(ctx context.Context, calendarID, organizerEmail string, in CreateInput) (*models.Event, error) {
	organizerEmail = strings.TrimSpace(organizerEmail)
	if organizerEmail == "" {
		return nil, apperr.Validation("organizer email is required")
	}

	uid := s.newICalUID()
	organizerCopy := in.event(calendarID, uid)
	if err := validate(organizerCopy); err != nil {
		return nil, err
	}

	var copies []*models.Event
	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		events := s.events.WithTx(tx)
		users := s.users.WithTx(tx)

		cal, err := s.calendarRepo.WithTx(tx).GetByID(ctx, calendarID)
		if err != nil {
			return err
		}
		if cal == nil {
			return apperr.NotFound("calendar", calendarID)
		}

		roster, err := s.buildRoster(ctx, users, organizerEmail, in.Attendees)
		if err != nil {
			return err
		}
		if organizer := roster[0].user; organizer != nil {
			organizerCopy.CreatorID = &organizer.ID
			organizerCopy.OrganizerID = &organizer.ID
		}

		if err := insertCopy(ctx, events, organizerCopy, roster); err != nil {
			return err
		}
		copies = append(copies, organizerCopy)

		held := map[string]bool{calendarID: true}
		for _, r := range roster[1:] {
			if r.user == nil {
				continue
			}
			target, err := s.calendars.EnsurePrimary(ctx, tx, r.user)
			if err != nil {
				return err
			}
			if held[target] {
				continue
			}
			held[target] = true

			c := in.event(target, uid)
			c.CreatorID = organizerCopy.CreatorID
			c.OrganizerID = organizerCopy.OrganizerID
			if err := insertCopy(ctx, events, c, roster); err != nil {
				return fmt.Errorf("creating copy for %s: %w", r.attendee.Email, err)
			}
			copies = append(copies, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ids := copyIDs(copies)
	s.logger.Info("event created", "event_id", organizerCopy.ID, "ical_uid", uid, "copies", len(ids))
	for _, c := range copies {
		s.reschedule(ctx, c.ID)
	}
	if s.publisher != nil {
		s.publisher.EventCreated(organizerCopy, ids)
	}
	return organizerCopy, nil
}

// loadIdentified loads an event and requires it to carry an iCalUID.
func loadIdentified(ctx context.Context, events *storage.EventRepository, eventID string) (*models.Event, error) {
	e, err := events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, apperr.NotFound("event", eventID)
	}
	if e.UID() == "" {
		return nil, apperr.InvalidIdentity(eventID)
	}
	return e, nil
}

// Update applies upd to the event and to every other copy sharing its
// iCalUID, atomically. The updated copy at eventID is returned.
func (s *Service) Update(ctx context.Context, eventID string, upd Update) (*models.Event, error) {
	var (
		updated *models.Event
		copies  []models.Event
	)
	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		events := s.events.WithTx(tx)

		e, err := loadIdentified(ctx, events, eventID)
		if err != nil {
			return err
		}

		copies, err = events.ListByICalUID(ctx, e.UID())
		if err != nil {
			return err
		}

		for i := range copies {
			c := &copies[i]
			upd.apply(c)
			if err := validate(c); err != nil {
				return err
			}
			if err := events.Update(ctx, c); err != nil {
				return fmt.Errorf("updating copy %s: %w", c.ID, err)
			}
			if c.ID == eventID {
				updated = c
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(copies))
	for i, c := range copies {
		ids[i] = c.ID
	}
	s.logger.Info("event updated", "event_id", eventID, "ical_uid", updated.UID(), "copies", len(ids))

	if upd.changesSchedule() {
		for _, id := range ids {
			s.reschedule(ctx, id)
		}
	}
	if s.publisher != nil {
		s.publisher.EventUpdated(updated, ids)
	}
	return updated, nil
}

// UpdateAttendeeResponse sets an attendee's response on one copy and on
// every other copy whose roster lists the same email. The email must
// already be on the roster of eventID.
func (s *Service) UpdateAttendeeResponse(ctx context.Context, eventID, email, status string) (*models.EventAttendee, error) {
	if !ValidResponse(status) {
		return nil, apperr.Validation("invalid response status %q", status)
	}

	var (
		e        *models.Event
		attendee *models.EventAttendee
		previous string
	)
	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		events := s.events.WithTx(tx)

		var err error
		e, err = loadIdentified(ctx, events, eventID)
		if err != nil {
			return err
		}

		attendee, err = events.GetAttendee(ctx, eventID, email)
		if err != nil {
			return err
		}
		if attendee == nil {
			return apperr.NotFound("attendee", email)
		}
		previous = attendee.ResponseStatus

		copies, err := events.ListByICalUID(ctx, e.UID())
		if err != nil {
			return err
		}
		for _, c := range copies {
			if c.ID != eventID {
				other, err := events.GetAttendee(ctx, c.ID, email)
				if err != nil {
					return err
				}
				if other == nil {
					continue
				}
			}
			if err := events.SetResponseStatus(ctx, c.ID, email, status); err != nil {
				return err
			}
		}

		attendee, err = events.GetAttendee(ctx, eventID, email)
		return err
	})
	if err != nil {
		return nil, err
	}

	if previous != status {
		s.notifyOrganizer(ctx, e, attendee, previous)
	}
	return attendee, nil
}

// notifyOrganizer records a response change for the organizer. Failures
// are logged only; the response itself is already committed.
func (s *Service) notifyOrganizer(ctx context.Context, e *models.Event, a *models.EventAttendee, previous string) {
	message := fmt.Sprintf("%s has %s the invitation to '%s'", a.Name(), a.ResponseStatus, e.Summary)
	s.logger.Info("attendee responded", "event_id", e.ID, "email", a.Email, "status", a.ResponseStatus)

	if s.publisher != nil {
		s.publisher.AttendeeResponded(e, a, previous, message)
	}

	organizerID := e.OrganizerID
	if organizerID == nil {
		return
	}

	now := time.Now().UTC()
	n := &models.NotificationLog{
		EventID:        e.ID,
		UserID:         organizerID,
		ReminderMethod: models.ReminderMethodEmail,
		MinutesBefore:  0,
		ScheduledTime:  now,
		SentTime:       now,
		EventSummary:   &e.Summary,
		EventStart:     &e.Start,
		Message:        &message,
	}
	if err := s.notifications.LogNotification(ctx, n); err != nil {
		s.logger.Error("failed to record response notification", "event_id", e.ID, "error", err)
	}
}

// Get returns an event copy with its roster and reminder overrides.
func (s *Service) Get(ctx context.Context, eventID string) (*models.EventWithDetails, error) {
	e, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, apperr.NotFound("event", eventID)
	}

	attendees, err := s.events.ListAttendees(ctx, eventID)
	if err != nil {
		return nil, err
	}
	reminders, err := s.notifications.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	if attendees == nil {
		attendees = []models.EventAttendee{}
	}
	if reminders == nil {
		reminders = []models.Reminder{}
	}
	return &models.EventWithDetails{
		Event:             *e,
		Attendees:         attendees,
		Reminders:         reminders,
		RecurrenceSummary: summarize(e.Recurrence),
	}, nil
}

// summarize describes the rule line of a recurrence, if it has one.
func summarize(r *models.Recurrence) string {
	if r == nil {
		return ""
	}
	for i := len(r.Rules) - 1; i >= 0; i-- {
		line := strings.TrimSpace(r.Rules[i])
		upper := strings.ToUpper(line)
		if line == "" || strings.HasPrefix(upper, "EXDATE") || strings.HasPrefix(upper, "RDATE") {
			continue
		}
		return recurrence.FormatSummary(line)
	}
	return ""
}

// Copies returns every copy of a logical event.
func (s *Service) Copies(ctx context.Context, iCalUID string) ([]models.Event, error) {
	copies, err := s.events.ListByICalUID(ctx, iCalUID)
	if err != nil {
		return nil, err
	}
	if len(copies) == 0 {
		return nil, apperr.NotFound("event", iCalUID)
	}
	return copies, nil
}

// GetByICalUID returns the copy of a logical event held by a calendar.
func (s *Service) GetByICalUID(ctx context.Context, iCalUID, calendarID string) (*models.Event, error) {
	e, err := s.events.GetByCalendarAndUID(ctx, calendarID, iCalUID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, apperr.NotFound("event", iCalUID)
	}
	return e, nil
}

// Delete removes a single copy. Sibling copies are left in place.
func (s *Service) Delete(ctx context.Context, eventID string) error {
	e, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return err
	}
	if e == nil {
		return apperr.NotFound("event", eventID)
	}

	if err := s.events.Delete(ctx, eventID); err != nil {
		return err
	}

	if s.reminders != nil {
		s.reminders.Cancel(eventID)
	}
	s.logger.Info("event deleted", "event_id", eventID, "ical_uid", e.UID())
	if s.publisher != nil {
		s.publisher.EventDeleted(e)
	}
	return nil
}

// reschedule refreshes reminder jobs after a commit. Errors are logged
// and never returned.
func (s *Service) reschedule(ctx context.Context, eventID string) {
	if s.reminders == nil {
		return
	}
	if _, err := s.reminders.Reschedule(ctx, eventID); err != nil {
		s.logger.Warn("failed to schedule reminders", "event_id", eventID, "error", err)
	}
}

func copyIDs(copies []*models.Event) []string {
	ids := make([]string, len(copies))
	for i, c := range copies {
		ids[i] = c.ID
	}
	return ids
}
