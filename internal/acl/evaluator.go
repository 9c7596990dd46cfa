package acl

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/team-calendar/backend/internal/apperr"
	"github.com/team-calendar/backend/internal/storage"
	"github.com/team-calendar/backend/internal/storage/models"
)

// Evaluator resolves a subject's role on a calendar and manages grants.
type Evaluator struct {
	db        *storage.DB
	users     *storage.UserRepository
	calendars *storage.CalendarRepository
	rules     *storage.ACLRepository
	logger    *slog.Logger
}

// NewEvaluator creates an evaluator over the given database.
func NewEvaluator(db *storage.DB, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		db:        db,
		users:     storage.NewUserRepository(db),
		calendars: storage.NewCalendarRepository(db),
		rules:     storage.NewACLRepository(db),
		logger:    logger.With("component", "acl"),
	}
}

// GetUserRole resolves the subject's role on a calendar. The calendar owner
// is always RoleOwner. Anyone else gets the role of the ACL rule matching
// their email. An unknown calendar, unknown subject or missing rule
// resolves to RoleNone without an error.
func (e *Evaluator) GetUserRole(ctx context.Context, subjectID, calendarID string) (Role, error) {
	cal, err := e.calendars.GetByID(ctx, calendarID)
	if err != nil {
		return RoleNone, err
	}
	if cal == nil {
		return RoleNone, nil
	}
	if cal.OwnerID == subjectID {
		return RoleOwner, nil
	}

	user, err := e.users.GetByID(ctx, subjectID)
	if err != nil {
		return RoleNone, err
	}
	if user == nil {
		return RoleNone, nil
	}

	rule, err := e.rules.GetByGrantee(ctx, calendarID, user.Email)
	if err != nil {
		return RoleNone, err
	}
	if rule == nil {
		return RoleNone, nil
	}

	role, err := ParseRole(rule.Role)
	if err != nil {
		e.logger.Warn("ignoring acl rule with unknown role",
			"calendar_id", calendarID, "grantee", rule.Grantee, "role", rule.Role)
		return RoleNone, nil
	}
	return role, nil
}

// CheckPermission reports whether the subject holds at least the required
// role on the calendar.
func (e *Evaluator) CheckPermission(ctx context.Context, subjectID, calendarID string, required Role) (bool, error) {
	role, err := e.GetUserRole(ctx, subjectID, calendarID)
	if err != nil {
		return false, err
	}
	return role.Satisfies(required), nil
}

// Share grants role on a calendar to an email or domain. If the grantee is
// a known user the calendar is also added to their calendar list.
func (e *Evaluator) Share(ctx context.Context, calendarID, grantee string, role Role) (*models.CalendarACL, error) {
	if grantee == "" {
		return nil, apperr.Validation("grantee is required")
	}
	if role == RoleNone {
		return nil, apperr.Validation("a role is required")
	}

	rule := &models.CalendarACL{CalendarID: calendarID, Grantee: grantee, Role: role.String()}

	err := e.db.Transaction(ctx, func(tx *sql.Tx) error {
		cal, err := e.calendars.WithTx(tx).GetByID(ctx, calendarID)
		if err != nil {
			return err
		}
		if cal == nil {
			return apperr.NotFound("calendar", calendarID)
		}

		if err := e.rules.WithTx(tx).Create(ctx, rule); err != nil {
			return err
		}

		user, err := e.users.WithTx(tx).GetByEmail(ctx, grantee)
		if err != nil || user == nil {
			return err
		}

		existing, err := e.calendars.WithTx(tx).GetListEntry(ctx, user.ID, calendarID)
		if err != nil || existing != nil {
			return err
		}
		return e.calendars.WithTx(tx).CreateListEntry(ctx, &models.CalendarListEntry{
			UserID:     user.ID,
			CalendarID: calendarID,
			AccessRole: role.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("calendar shared", "calendar_id", calendarID, "grantee", grantee, "role", role)
	return rule, nil
}

// Revoke removes an ACL rule. The owner's rule cannot be revoked.
func (e *Evaluator) Revoke(ctx context.Context, calendarID string, ruleID int64) error {
	rule, err := e.rules.GetByID(ctx, calendarID, ruleID)
	if err != nil {
		return err
	}
	if rule == nil {
		return apperr.NotFound("acl rule", strconv.FormatInt(ruleID, 10))
	}
	if rule.Role == models.RoleOwner {
		return apperr.Validation("cannot revoke the owner's access to calendar %s", calendarID)
	}

	if err := e.rules.Delete(ctx, ruleID); err != nil {
		return fmt.Errorf("revoking acl rule: %w", err)
	}

	e.logger.Info("calendar access revoked", "calendar_id", calendarID, "grantee", rule.Grantee)
	return nil
}

// List returns every rule on a calendar.
func (e *Evaluator) List(ctx context.Context, calendarID string) ([]models.CalendarACL, error) {
	cal, err := e.calendars.GetByID(ctx, calendarID)
	if err != nil {
		return nil, err
	}
	if cal == nil {
		return nil, apperr.NotFound("calendar", calendarID)
	}
	return e.rules.ListByCalendar(ctx, calendarID)
}
