// Package scheduler runs the price refresh and cache purge jobs on cron
// schedules.
package scheduler

import (
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a unit of background work.
type Job interface {
	Run() error
	Name() string
}

// Entry describes a registered job.
type Entry struct {
	Job      string
	Schedule string
	// Next is zero until the scheduler has been started.
	Next time.Time
}

// Scheduler runs jobs on cron schedules with a seconds field. A job that
// panics is recovered and a run that is due while the previous run of the
// same job is still going is skipped.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger

	mu   sync.Mutex
	jobs map[cron.EntryID]Entry
}

// New creates a scheduler.
func New(log zerolog.Logger) *Scheduler {
	log = log.With().Str("component", "scheduler").Logger()
	clog := cronLogger{log: log}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(clog),
			cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
		),
		log:  log,
		jobs: make(map[cron.EntryID]Entry),
	}
}

// Start starts the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.Entries())).Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers job under schedule, e.g. "0 0 3 * * *" or "@every 30m".
func (s *Scheduler) AddJob(schedule string, job Job) error {
	id, err := s.cron.AddFunc(schedule, func() {
		_ = s.run(job)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.jobs[id] = Entry{Job: job.Name(), Schedule: schedule}
	s.mu.Unlock()

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")
	return nil
}

// Entries returns the registered jobs ordered by job name.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.jobs))
	for _, e := range s.cron.Entries() {
		entry, ok := s.jobs[e.ID]
		if !ok {
			continue
		}
		entry.Next = e.Next
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Job < out[j].Job })
	return out
}

// RunNow runs job immediately, outside its schedule.
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("Running job immediately")
	return s.run(job)
}

func (s *Scheduler) run(job Job) error {
	start := time.Now()
	err := job.Run()
	event := s.log.Debug()
	if err != nil {
		event = s.log.Error().Err(err)
	}
	event.
		Str("job", job.Name()).
		Dur("duration", time.Since(start)).
		Msg("Job finished")
	return err
}

// cronLogger routes cron's own messages to zerolog. Routine messages are
// demoted to debug.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
