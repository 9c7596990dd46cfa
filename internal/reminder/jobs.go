package reminder

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/team-calendar/backend/internal/logging"
)

// Job describes a pending one-shot job.
type Job struct {
	ID string    `json:"id"`
	At time.Time `json:"fire_at"`
}

// oneShot is a cron.Schedule that fires exactly once. A zero Next tells
// cron the entry never runs again.
type oneShot struct {
	at time.Time
}

func (s oneShot) Next(t time.Time) time.Time {
	if t.Before(s.at) {
		return s.at
	}
	return time.Time{}
}

type scheduledJob struct {
	entry cron.EntryID
	seq   uint64
	at    time.Time
}

// JobScheduler runs one-shot jobs keyed by ID on a cron runner.
// Scheduling an ID that is already pending replaces the pending job.
type JobScheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	jobs   map[string]scheduledJob
	seq    uint64
	jobsMu sync.Mutex
}

// NewJobScheduler creates a stopped scheduler. Panicking jobs are
// recovered and logged.
func NewJobScheduler(logger *slog.Logger) *JobScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "jobs")
	cl := logging.CronLogger(logger)

	return &JobScheduler{
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		logger: logger,
		jobs:   make(map[string]scheduledJob),
	}
}

// Start begins running jobs in the background.
func (s *JobScheduler) Start() {
	s.cron.Start()
	s.logger.Info("job scheduler started")
}

// Stop halts the scheduler and waits for running jobs to finish.
func (s *JobScheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("job scheduler stopped")
}

// Schedule registers fn to run once at the given time, replacing any
// pending job with the same id.
func (s *JobScheduler) Schedule(id string, at time.Time, fn func()) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	if existing, ok := s.jobs[id]; ok {
		s.cron.Remove(existing.entry)
		delete(s.jobs, id)
	}

	s.seq++
	seq := s.seq
	entry := s.cron.Schedule(oneShot{at: at}, cron.FuncJob(func() {
		s.finish(id, seq)
		fn()
	}))
	s.jobs[id] = scheduledJob{entry: entry, seq: seq, at: at}

	s.logger.Debug("job scheduled", "job_id", id, "fire_at", at)
}

// finish forgets a job that is about to run, unless it has been replaced.
func (s *JobScheduler) finish(id string, seq uint64) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	if current, ok := s.jobs[id]; ok && current.seq == seq {
		s.cron.Remove(current.entry)
		delete(s.jobs, id)
	}
}

// Cancel removes a pending job. It reports whether one was found.
func (s *JobScheduler) Cancel(id string) bool {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return false
	}
	s.cron.Remove(job.entry)
	delete(s.jobs, id)
	return true
}

// CancelPrefix removes every pending job whose id starts with prefix and
// returns how many were removed.
func (s *JobScheduler) CancelPrefix(prefix string) int {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	n := 0
	for id, job := range s.jobs {
		if strings.HasPrefix(id, prefix) {
			s.cron.Remove(job.entry)
			delete(s.jobs, id)
			n++
		}
	}
	return n
}

// Jobs returns the pending jobs ordered by fire time.
func (s *JobScheduler) Jobs() []Job {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	jobs := make([]Job, 0, len(s.jobs))
	for id, job := range s.jobs {
		jobs = append(jobs, Job{ID: id, At: job.at})
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].At.Equal(jobs[j].At) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].At.Before(jobs[j].At)
	})
	return jobs
}
