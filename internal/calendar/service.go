// Package calendar manages users, their calendars and calendar lists, and
// exports calendars as iCalendar feeds.
package calendar

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/team-calendar/backend/internal/apperr"
	"github.com/team-calendar/backend/internal/storage"
	"github.com/team-calendar/backend/internal/storage/models"
)

// Service manages users and calendars.
type Service struct {
	db        *storage.DB
	users     *storage.UserRepository
	calendars *storage.CalendarRepository
	rules     *storage.ACLRepository
	logger    *slog.Logger
}

// NewService creates a new calendar service.
func NewService(db *storage.DB, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:        db,
		users:     storage.NewUserRepository(db),
		calendars: storage.NewCalendarRepository(db),
		rules:     storage.NewACLRepository(db),
		logger:    logger.With("component", "calendar"),
	}
}

// CreateUser registers a user. Emails are unique.
func (s *Service) CreateUser(ctx context.Context, email string, name *string) (*models.User, error) {
	email = strings.TrimSpace(email)
	if !strings.Contains(email, "@") {
		return nil, apperr.Validation("invalid email %q", email)
	}

	u := &models.User{Email: email, Name: name}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// GetUser retrieves a user by ID.
func (s *Service) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.NotFound("user", id)
	}
	return u, nil
}

// ListUsers returns a page of users ordered by email.
func (s *Service) ListUsers(ctx context.Context, offset, limit int) ([]models.User, error) {
	if offset < 0 || limit < 0 {
		return nil, apperr.Validation("offset and limit must not be negative")
	}
	users, err := s.users.List(ctx, offset, limit)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []models.User{}
	}
	return users, nil
}

// UserUpdate lists the user fields that can change. Nil fields are left
// as they are.
type UserUpdate struct {
	Email *string `json:"email,omitempty"`
	Name  *string `json:"name,omitempty"`
}

// UpdateUser changes a user's email or name. A new email carries the
// user's calendar grants and roster entries along with it.
func (s *Service) UpdateUser(ctx context.Context, id string, in UserUpdate) (*models.User, error) {
	var u *models.User
	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		var err error
		u, err = s.users.WithTx(tx).GetByID(ctx, id)
		if err != nil {
			return err
		}
		if u == nil {
			return apperr.NotFound("user", id)
		}

		previous := u.Email
		if in.Email != nil {
			email := strings.TrimSpace(*in.Email)
			if !strings.Contains(email, "@") {
				return apperr.Validation("invalid email %q", email)
			}
			u.Email = email
		}
		if in.Name != nil {
			u.Name = in.Name
		}
		if err := s.users.WithTx(tx).Update(ctx, u); err != nil {
			return err
		}

		if u.Email == previous {
			return nil
		}
		if err := s.rules.WithTx(tx).RenameGrantee(ctx, previous, u.Email); err != nil {
			return err
		}
		return storage.NewEventRepository(s.db).WithTx(tx).RenameAttendee(ctx, u.ID, u.Email)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user updated", "user_id", u.ID)
	return u, nil
}

// DeleteUser removes a user together with the calendars they own and
// every event in them. It returns the IDs of the removed events so their
// pending reminders can be dropped.
func (s *Service) DeleteUser(ctx context.Context, id string) ([]string, error) {
	var removed []string
	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		var err error
		removed, err = storage.NewEventRepository(s.db).WithTx(tx).ListOwnedIDs(ctx, id)
		if err != nil {
			return err
		}
		return s.users.WithTx(tx).Delete(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user deleted", "user_id", id, "events_removed", len(removed))
	return removed, nil
}

// CalendarInput holds the fields accepted when creating a calendar.
type CalendarInput struct {
	Title       string  `json:"title"`
	Timezone    string  `json:"timezone"`
	Description *string `json:"description,omitempty"`
}

// CreateCalendar creates a calendar owned by ownerID, adds it to the owner's
// list (as primary if they have none yet) and records the owner grant.
func (s *Service) CreateCalendar(ctx context.Context, ownerID string, in CalendarInput) (*models.Calendar, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, apperr.Validation("title is required")
	}
	if in.Timezone == "" {
		in.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(in.Timezone); err != nil {
		return nil, apperr.Validation("unknown timezone %q", in.Timezone)
	}

	var cal *models.Calendar
	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		owner, err := s.users.WithTx(tx).GetByID(ctx, ownerID)
		if err != nil {
			return err
		}
		if owner == nil {
			return apperr.NotFound("user", ownerID)
		}

		primary, err := s.calendars.WithTx(tx).GetPrimaryListEntry(ctx, ownerID)
		if err != nil {
			return err
		}

		cal = &models.Calendar{
			Title:       in.Title,
			Timezone:    in.Timezone,
			OwnerID:     ownerID,
			Description: in.Description,
		}
		return s.insertOwned(ctx, tx, owner, cal, primary == nil)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("calendar created", "calendar_id", cal.ID, "owner_id", ownerID)
	return cal, nil
}

// insertOwned writes a calendar together with its owner list entry and
// owner grant.
func (s *Service) insertOwned(ctx context.Context, tx *sql.Tx, owner *models.User, cal *models.Calendar, primary bool) error {
	if err := s.calendars.WithTx(tx).Create(ctx, cal); err != nil {
		return err
	}

	if err := s.calendars.WithTx(tx).CreateListEntry(ctx, &models.CalendarListEntry{
		UserID:     owner.ID,
		CalendarID: cal.ID,
		AccessRole: models.RoleOwner,
		IsPrimary:  primary,
	}); err != nil {
		return err
	}

	return s.rules.WithTx(tx).Create(ctx, &models.CalendarACL{
		CalendarID: cal.ID,
		Grantee:    owner.Email,
		Role:       models.RoleOwner,
	})
}

// EnsurePrimary returns the ID of the user's primary calendar, creating one
// within tx when the user has none.
func (s *Service) EnsurePrimary(ctx context.Context, tx *sql.Tx, user *models.User) (string, error) {
	entry, err := s.calendars.WithTx(tx).GetPrimaryListEntry(ctx, user.ID)
	if err != nil {
		return "", err
	}
	if entry != nil {
		return entry.CalendarID, nil
	}

	description := "Primary calendar"
	cal := &models.Calendar{
		Title:       fmt.Sprintf("%s's Calendar", user.DisplayName()),
		Timezone:    "UTC",
		OwnerID:     user.ID,
		Description: &description,
	}
	if err := s.insertOwned(ctx, tx, user, cal, true); err != nil {
		return "", fmt.Errorf("creating primary calendar for %s: %w", user.Email, err)
	}

	s.logger.Info("created primary calendar", "user_id", user.ID, "calendar_id", cal.ID)
	return cal.ID, nil
}

// GetCalendar retrieves a calendar by ID.
func (s *Service) GetCalendar(ctx context.Context, id string) (*models.Calendar, error) {
	cal, err := s.calendars.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cal == nil {
		return nil, apperr.NotFound("calendar", id)
	}
	return cal, nil
}

// ListForUser returns the user's calendar list, primary first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]models.CalendarListEntryWithCalendar, error) {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.calendars.ListEntriesForUser(ctx, userID)
}

// SetDefaultReminders replaces the default reminders on a user's list entry.
func (s *Service) SetDefaultReminders(ctx context.Context, userID, calendarID string, reminders []models.DefaultReminder) error {
	for _, r := range reminders {
		if r.Method != "" && r.Method != models.ReminderMethodPopup && r.Method != models.ReminderMethodEmail {
			return apperr.Validation("invalid reminder method %q", r.Method)
		}
		if r.Minutes != nil && *r.Minutes < 0 {
			return apperr.Validation("reminder minutes must not be negative")
		}
	}
	if reminders == nil {
		reminders = []models.DefaultReminder{}
	}
	return s.calendars.SetDefaultReminders(ctx, userID, calendarID, reminders)
}
