// Package scheduler manages the background jobs of the decision engine.
package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// HistoryRecorder persists job outcomes. Nil recorder disables history.
type HistoryRecorder interface {
	Record(jobName, status, detail string, started, finished time.Time) error
}

// Scheduler manages background jobs
type Scheduler struct {
	cron    *cron.Cron
	history HistoryRecorder
	log     zerolog.Logger
}

// New creates a new scheduler
func New(history HistoryRecorder, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		history: history,
		log:     log.With().Str("component", "scheduler").Logger(),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a job with a cron schedule. Outcomes are recorded in the
// job history.
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.runRecorded(job)
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")
	return nil
}

// RunNow executes a job immediately, outside its schedule.
func (s *Scheduler) RunNow(job Job) error {
	s.runRecorded(job)
	return nil
}

func (s *Scheduler) runRecorded(job Job) {
	started := time.Now().UTC()
	s.log.Debug().Str("job", job.Name()).Msg("Running job")

	err := job.Run()
	finished := time.Now().UTC()

	status, detail := "ok", ""
	if err != nil {
		status, detail = "error", err.Error()
		s.log.Error().Err(err).Str("job", job.Name()).Msg("Job failed")
	} else {
		s.log.Debug().Str("job", job.Name()).Msg("Job completed")
	}

	if s.history != nil {
		if herr := s.history.Record(job.Name(), status, detail, started, finished); herr != nil {
			s.log.Warn().Err(herr).Str("job", job.Name()).Msg("Failed to record job history")
		}
	}
}
