package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clubemecanico/courses-backend/pkg/logger"
	"github.com/clubemecanico/courses-backend/pkg/metrics"
)

const defaultTick = 5 * time.Minute

type ServiceParams struct {
	Logger   *logger.Logger
	Schedule *Schedule
	Lock     Lock
	Metrics  *metrics.CronMetrics
	Tick     time.Duration
	Now      func() time.Time
}

// Service wakes up every tick, takes the cluster-wide lease and runs the jobs that are due.
// A job failure is logged and counted; the remaining jobs still run.
type Service struct {
	logg     *logger.Logger
	schedule *Schedule
	lock     Lock
	metrics  *metrics.CronMetrics
	tick     time.Duration
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Lock == nil {
		return nil, errors.New("lock required")
	}
	if params.Schedule == nil {
		return nil, errors.New("schedule required")
	}
	s := &Service{
		logg:     params.Logger,
		schedule: params.Schedule,
		lock:     params.Lock,
		metrics:  params.Metrics,
		tick:     params.Tick,
		now:      params.Now,
	}
	if s.tick <= 0 {
		s.tick = defaultTick
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Run executes a cycle immediately and then once per tick until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"jobs": s.schedule.Names(),
		"tick": s.tick.String(),
	}), "cron schedule loaded")

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		if err := s.cycle(ctx); err != nil {
			s.logg.Error(ctx, "cron cycle failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service context canceled")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// cycle returns an error only when the lease could not be checked; job failures are
// reported per job.
func (s *Service) cycle(ctx context.Context) error {
	lease, err := s.lock.Acquire(ctx)
	if errors.Is(err, ErrLockHeld) {
		s.metrics.CycleSkipped()
		s.logg.Info(s.logg.WithField(ctx, "lock", err.Error()), "cron cycle skipped; lease held elsewhere")
		return nil
	}
	if err != nil {
		return fmt.Errorf("acquire cron lease: %w", err)
	}
	defer func() {
		if relErr := lease.Release(ctx); relErr != nil {
			s.logg.Error(ctx, "failed to release cron lease", relErr)
		}
	}()

	ctx = s.logg.WithField(ctx, "lease", lease.Holder())
	for _, job := range s.schedule.Due(s.now()) {
		s.runJob(ctx, job)
	}
	return nil
}

func (s *Service) runJob(ctx context.Context, job Job) {
	ctx = s.logg.WithFields(ctx, map[string]any{"job": job.Name(), "event": "cron.job"})
	started := s.now()
	tally, err := job.Run(ctx)
	finished := s.now()
	s.metrics.ObserveRun(job.Name(), finished.Sub(started), tally, err != nil, finished)

	fields := map[string]any{"duration_ms": finished.Sub(started).Milliseconds()}
	for item, n := range tally {
		fields[item] = n
	}
	ctx = s.logg.WithFields(ctx, fields)
	if err != nil {
		s.logg.Error(ctx, "cron job failed", err)
		return
	}
	s.logg.Info(ctx, "cron job completed")
}
