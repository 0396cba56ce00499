// Package sched runs the periodic maintenance jobs on a cron schedule.
package sched

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"prepaid-subscription/internal/domain"
	"prepaid-subscription/internal/domain/ports/adapter"
	"prepaid-subscription/internal/infra/metrics"
)

// Job is one unit of scheduled work. Run returns how many items it handled.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) (int, error)
}

// Scheduler runs jobs under robfig/cron. When a Locker is set every run
// first takes a lock named after the job, so only one replica runs it.
type Scheduler struct {
	cron    *cron.Cron
	jobs    map[string]Job
	locker  adapter.Locker
	lockTTL time.Duration
	ctx     context.Context
	log     *zerolog.Logger
}

func NewScheduler(locker adapter.Locker, lockTTL time.Duration, logger *zerolog.Logger) *Scheduler {
	l := logger.With().Str("component", "Scheduler").Logger()
	cl := cronLogger{log: &l}
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		jobs:    make(map[string]Job),
		locker:  locker,
		lockTTL: lockTTL,
		ctx:     context.Background(),
		log:     &l,
	}
}

// Add registers j. Jobs with an empty spec are available to RunOnce only.
func (s *Scheduler) Add(j Job) error {
	if j.Name == "" || j.Run == nil {
		return domain.ErrInvalidArgument
	}
	if _, dup := s.jobs[j.Name]; dup {
		return fmt.Errorf("%w: job %s already registered", domain.ErrAlreadyExists, j.Name)
	}
	if j.Spec != "" {
		if _, err := s.cron.AddFunc(j.Spec, func() { _, _ = s.run(s.ctx, j) }); err != nil {
			return fmt.Errorf("schedule %s (%q): %w", j.Name, j.Spec, err)
		}
	}
	s.jobs[j.Name] = j
	return nil
}

// Start runs the cron loop until ctx is done, then waits for running jobs.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx = ctx
	s.log.Info().Int("jobs", len(s.jobs)).Msg("Starting scheduler")
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.log.Info().Msg("Scheduler stopped")
	return nil
}

// RunOnce runs the named job immediately, honouring the job lock.
func (s *Scheduler) RunOnce(ctx context.Context, name string) (int, error) {
	j, ok := s.jobs[name]
	if !ok {
		return 0, fmt.Errorf("%w: job %s", domain.ErrNotFound, name)
	}
	return s.run(ctx, j)
}

func (s *Scheduler) run(ctx context.Context, j Job) (int, error) {
	log := s.log.With().Str("job", j.Name).Logger()

	if s.locker != nil {
		key := "sched:" + j.Name
		token, err := s.locker.TryLock(ctx, key, s.lockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				metrics.IncJobRun(j.Name, "skipped")
				log.Debug().Msg("job locked by another instance")
				return 0, nil
			}
			metrics.IncJobRun(j.Name, "error")
			log.Error().Err(err).Msg("job lock failed")
			return 0, err
		}
		defer func() {
			if err := s.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
				log.Warn().Err(err).Msg("job unlock failed")
			}
		}()
	}

	start := time.Now()
	n, err := j.Run(ctx)
	if err != nil {
		metrics.IncJobRun(j.Name, "error")
		log.Error().Err(err).Int("count", n).Dur("took", time.Since(start)).Msg("job failed")
		return n, err
	}
	metrics.IncJobRun(j.Name, "ok")
	if n > 0 {
		log.Info().Int("count", n).Dur("took", time.Since(start)).Msg("job finished")
	}
	return n, nil
}

type cronLogger struct{ log *zerolog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
