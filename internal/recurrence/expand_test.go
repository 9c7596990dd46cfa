package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/team-calendar/backend/internal/apperr"
)

func at(day, hour int) time.Time {
	return time.Date(2025, 1, day, hour, 0, 0, 0, time.UTC)
}

func TestExpandNoDirectives(t *testing.T) {
	anchor := at(5, 10)

	got, err := Expand(anchor, nil, at(1, 0), at(31, 0), 0)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{anchor}, got)

	got, err = Expand(anchor, nil, at(6, 0), at(31, 0), 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = Expand(anchor, []string{}, anchor, anchor, 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestExpandDailyWithExDates(t *testing.T) {
	got, err := Expand(at(1, 10),
		[]string{"RRULE:FREQ=DAILY;COUNT=10", "EXDATE:20250103T100000,20250107T100000"},
		at(1, 0), time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), 0)
	require.NoError(t, err)

	require.Len(t, got, 8)
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i-1].Before(got[i]))
	}
	assert.NotContains(t, got, at(3, 10))
	assert.NotContains(t, got, at(7, 10))
	assert.Equal(t, at(10, 10), got[7])
}

func TestExpandWeeklyByDay(t *testing.T) {
	anchor := time.Date(2025, 1, 7, 10, 0, 0, 0, time.UTC)

	got, err := Expand(anchor, []string{"RRULE:FREQ=WEEKLY;BYDAY=TU,FR;COUNT=5"},
		anchor, anchor.AddDate(0, 2, 0), 0)
	require.NoError(t, err)

	require.Len(t, got, 5)
	assert.Equal(t, anchor, got[0])
	assert.Equal(t, at(10, 10), got[1])
	for _, occ := range got {
		assert.Contains(t, []time.Weekday{time.Tuesday, time.Friday}, occ.Weekday())
	}
}

func TestExpandIntervalAndUntil(t *testing.T) {
	got, err := Expand(at(1, 9), []string{"FREQ=DAILY;INTERVAL=3;COUNT=4"}, at(1, 0), at(31, 0), 0)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at(1, 9), at(4, 9), at(7, 9), at(10, 9)}, got)

	got, err = Expand(at(1, 9), []string{"RRULE:FREQ=DAILY;UNTIL=20250105T090000Z"}, at(1, 0), at(31, 0), 0)
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

func TestExpandWindowIsInclusive(t *testing.T) {
	ws, we := at(10, 10), at(20, 10)

	got, err := Expand(at(1, 10), []string{"RRULE:FREQ=DAILY"}, ws, we, 0)
	require.NoError(t, err)

	require.Len(t, got, 11)
	assert.Equal(t, ws, got[0])
	assert.Equal(t, we, got[10])
	for _, occ := range got {
		assert.False(t, occ.Before(ws) || occ.After(we))
	}
}

func TestExpandRDateUnionIsDeduplicated(t *testing.T) {
	got, err := Expand(at(1, 10),
		[]string{"RRULE:FREQ=DAILY;COUNT=3", "RDATE:20250102T100000,20250115T100000", "RDATE:20250115T100000Z"},
		at(1, 0), at(31, 0), 0)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at(1, 10), at(2, 10), at(3, 10), at(15, 10)}, got)
}

func TestExpandOnlyRDates(t *testing.T) {
	got, err := Expand(at(1, 10), []string{"RDATE:20250120", "EXDATE:not-a-date"}, at(1, 0), at(31, 0), 0)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at(20, 0)}, got)
}

func TestExpandFallbackDateFormats(t *testing.T) {
	got, err := Expand(at(1, 10),
		[]string{"RRULE:FREQ=DAILY;COUNT=5", "EXDATE:2025-01-02T10:00:00,2025-01-04 10:00:00"},
		at(1, 0), at(31, 0), 0)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at(1, 10), at(3, 10), at(5, 10)}, got)
}

func TestExpandTZIDParameter(t *testing.T) {
	got, err := Expand(at(1, 10),
		[]string{"RRULE:FREQ=DAILY;COUNT=3", "EXDATE;TZID=UTC:20250102T100000"},
		at(1, 0), at(31, 0), 0)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at(1, 10), at(3, 10)}, got)
}

func TestExpandCapsRawHits(t *testing.T) {
	got, err := Expand(at(1, 0), []string{"RRULE:FREQ=DAILY"}, at(1, 0), at(31, 0), 7)
	require.NoError(t, err)
	assert.Len(t, got, 7)
}

func TestExpandInvalidRule(t *testing.T) {
	for _, directives := range [][]string{
		{"INVALID_RRULE"},
		{"RRULE:FREQ=HOURLY"},
		{"RRULE:FREQ=WEEKLY;BYDAY=XX"},
		{"RRULE:"},
	} {
		_, err := Expand(at(1, 0), directives, at(1, 0), at(31, 0), 0)
		assert.ErrorIs(t, err, apperr.ErrInvalidRecurrence, "%v", directives)
	}
}

func TestExpandLastRuleWins(t *testing.T) {
	got, err := Expand(at(1, 10),
		[]string{"RRULE:FREQ=DAILY;COUNT=10", "RRULE:FREQ=WEEKLY;COUNT=2"},
		at(1, 0), at(31, 0), 0)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at(1, 10), at(8, 10)}, got)
}
