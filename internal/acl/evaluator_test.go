package acl_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/team-calendar/backend/internal/acl"
	"github.com/team-calendar/backend/internal/apperr"
	"github.com/team-calendar/backend/internal/calendar"
	"github.com/team-calendar/backend/internal/storage"
	"github.com/team-calendar/backend/internal/storage/models"
	"github.com/team-calendar/backend/internal/storage/storagetest"
)

type fixture struct {
	db        *storage.DB
	eval      *acl.Evaluator
	owner     *models.User
	guest     *models.User
	ownerCal  *models.Calendar
	secondCal *models.Calendar
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db := storagetest.Open(t)
	calendars := calendar.NewService(db, nil)

	owner, err := calendars.CreateUser(ctx, "owner@example.com", nil)
	require.NoError(t, err)
	guest, err := calendars.CreateUser(ctx, "guest@example.com", nil)
	require.NoError(t, err)

	first, err := calendars.CreateCalendar(ctx, owner.ID, calendar.CalendarInput{Title: "Team"})
	require.NoError(t, err)
	second, err := calendars.CreateCalendar(ctx, owner.ID, calendar.CalendarInput{Title: "Private"})
	require.NoError(t, err)

	return &fixture{
		db:        db,
		eval:      acl.NewEvaluator(db, nil),
		owner:     owner,
		guest:     guest,
		ownerCal:  first,
		secondCal: second,
	}
}

func TestOwnerAlwaysResolvesToOwner(t *testing.T) {
	f := newFixture(t)

	role, err := f.eval.GetUserRole(context.Background(), f.owner.ID, f.ownerCal.ID)
	require.NoError(t, err)
	assert.Equal(t, acl.RoleOwner, role)
}

func TestNoRuleMeansNoAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	role, err := f.eval.GetUserRole(ctx, f.guest.ID, f.ownerCal.ID)
	require.NoError(t, err)
	assert.Equal(t, acl.RoleNone, role)

	ok, err := f.eval.CheckPermission(ctx, f.guest.ID, f.ownerCal.ID, acl.RoleFreeBusyReader)
	require.NoError(t, err)
	assert.False(t, ok)

	role, err = f.eval.GetUserRole(ctx, "nobody", f.ownerCal.ID)
	require.NoError(t, err)
	assert.Equal(t, acl.RoleNone, role)

	role, err = f.eval.GetUserRole(ctx, f.owner.ID, "no-such-calendar")
	require.NoError(t, err)
	assert.Equal(t, acl.RoleNone, role)
}

func TestShareGrantsOnlyThatCalendar(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rule, err := f.eval.Share(ctx, f.ownerCal.ID, f.guest.Email, acl.RoleWriter)
	require.NoError(t, err)
	assert.NotZero(t, rule.ID)

	role, err := f.eval.GetUserRole(ctx, f.guest.ID, f.ownerCal.ID)
	require.NoError(t, err)
	assert.Equal(t, acl.RoleWriter, role)

	for required, want := range map[acl.Role]bool{
		acl.RoleFreeBusyReader: true,
		acl.RoleReader:         true,
		acl.RoleWriter:         true,
		acl.RoleOwner:          false,
	} {
		ok, err := f.eval.CheckPermission(ctx, f.guest.ID, f.ownerCal.ID, required)
		require.NoError(t, err)
		assert.Equal(t, want, ok, "required %s", required)
	}

	role, err = f.eval.GetUserRole(ctx, f.guest.ID, f.secondCal.ID)
	require.NoError(t, err)
	assert.Equal(t, acl.RoleNone, role, "grant must not leak to the owner's other calendars")

	entry, err := storage.NewCalendarRepository(f.db).GetListEntry(ctx, f.guest.ID, f.ownerCal.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, models.RoleWriter, entry.AccessRole)
	assert.False(t, entry.IsPrimary)
}

func TestShareValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.eval.Share(ctx, f.ownerCal.ID, f.guest.Email, acl.RoleReader)
	require.NoError(t, err)

	_, err = f.eval.Share(ctx, f.ownerCal.ID, f.guest.Email, acl.RoleWriter)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = f.eval.Share(ctx, f.ownerCal.ID, "", acl.RoleReader)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.eval.Share(ctx, f.ownerCal.ID, "x@example.com", acl.RoleNone)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.eval.Share(ctx, "missing", "x@example.com", acl.RoleReader)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestShareWithUnknownEmailKeepsRuleOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.eval.Share(ctx, f.ownerCal.ID, "later@example.com", acl.RoleReader)
	require.NoError(t, err)

	rules, err := f.eval.List(ctx, f.ownerCal.ID)
	require.NoError(t, err)

	var grantees []string
	for _, r := range rules {
		grantees = append(grantees, r.Grantee)
	}
	assert.ElementsMatch(t, []string{"owner@example.com", "later@example.com"}, grantees)
}

func TestRevoke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rule, err := f.eval.Share(ctx, f.ownerCal.ID, f.guest.Email, acl.RoleReader)
	require.NoError(t, err)

	require.NoError(t, f.eval.Revoke(ctx, f.ownerCal.ID, rule.ID))

	role, err := f.eval.GetUserRole(ctx, f.guest.ID, f.ownerCal.ID)
	require.NoError(t, err)
	assert.Equal(t, acl.RoleNone, role)

	assert.ErrorIs(t, f.eval.Revoke(ctx, f.ownerCal.ID, rule.ID), apperr.ErrNotFound)

	rules, err := f.eval.List(ctx, f.ownerCal.ID)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.ErrorIs(t, f.eval.Revoke(ctx, f.ownerCal.ID, rules[0].ID), apperr.ErrValidation)

	// the owner's rule cannot be revoked through another calendar either
	assert.ErrorIs(t, f.eval.Revoke(ctx, f.secondCal.ID, rules[0].ID), apperr.ErrNotFound)
}
