package reminder

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startedScheduler(t *testing.T) *JobScheduler {
	t.Helper()
	s := NewJobScheduler(nil)
	s.Start()
	t.Cleanup(s.Stop)
	return s
}

func TestJobSchedulerReplacesByID(t *testing.T) {
	s := startedScheduler(t)
	var first, second atomic.Int32

	s.Schedule("job", time.Now().Add(50*time.Millisecond), func() { first.Add(1) })
	s.Schedule("job", time.Now().Add(80*time.Millisecond), func() { second.Add(1) })
	require.Len(t, s.Jobs(), 1)

	require.Eventually(t, func() bool { return second.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	assert.Zero(t, first.Load())
	assert.Equal(t, int32(1), second.Load())
	assert.Empty(t, s.Jobs())
}

func TestJobSchedulerCancel(t *testing.T) {
	s := NewJobScheduler(nil)
	at := time.Now().Add(time.Hour)

	s.Schedule("reminder_e1_popup_10", at, func() {})
	s.Schedule("reminder_e1_email_5", at, func() {})
	s.Schedule("reminder_e10_popup_10", at, func() {})

	assert.Equal(t, 2, s.CancelPrefix("reminder_e1_"))
	assert.Zero(t, s.CancelPrefix("reminder_e1_"))
	assert.True(t, s.Cancel("reminder_e10_popup_10"))
	assert.False(t, s.Cancel("reminder_e10_popup_10"))
	assert.Empty(t, s.Jobs())
}

func TestJobSchedulerJobsOrdered(t *testing.T) {
	s := NewJobScheduler(nil)
	now := time.Now()

	s.Schedule("late", now.Add(2*time.Hour), func() {})
	s.Schedule("early", now.Add(time.Hour), func() {})

	jobs := s.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "early", jobs[0].ID)
	assert.Equal(t, "late", jobs[1].ID)
}

func TestJobSchedulerSurvivesPanic(t *testing.T) {
	s := startedScheduler(t)
	var fired atomic.Bool

	s.Schedule("boom", time.Now().Add(20*time.Millisecond), func() { panic("boom") })
	s.Schedule("ok", time.Now().Add(60*time.Millisecond), func() { fired.Store(true) })

	require.Eventually(t, fired.Load, 2*time.Second, 10*time.Millisecond)
}

func TestOneShotNext(t *testing.T) {
	at := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	s := oneShot{at: at}

	assert.Equal(t, at, s.Next(at.Add(-time.Second)))
	assert.True(t, s.Next(at).IsZero())
	assert.True(t, s.Next(at.Add(time.Second)).IsZero())
}
