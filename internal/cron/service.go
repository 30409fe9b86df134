package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const defaultInterval = 15 * time.Minute

type jobObserver interface {
	ObserveRun(job string, took time.Duration, err error)
}

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  jobObserver
	Interval time.Duration
}

// Service runs the registered jobs back to back every Interval. Only the
// replica holding Lock does work in a given cycle.
type Service struct {
	logg     *logger.Logger
	jobs     *Registry
	lock     Lock
	observer jobObserver
	every    time.Duration
}

func NewService(p ServiceParams) (*Service, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger required")
	case p.Lock == nil:
		return nil, errors.New("lock required")
	}
	jobs := p.Registry
	if jobs == nil {
		jobs, _ = NewRegistry()
	}
	every := p.Interval
	if every <= 0 {
		every = defaultInterval
	}
	return &Service{logg: p.Logger, jobs: jobs, lock: p.Lock, observer: p.Metrics, every: every}, nil
}

// Run fires a cycle immediately and then on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.every)
	defer ticker.Stop()
	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logg.Error(ctx, "cron.cycle.failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron.stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce executes every job a single time and reports whether this replica
// held the lock. A failing job does not stop the ones after it.
func (s *Service) RunOnce(ctx context.Context) (bool, error) {
	held, err := s.lock.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("lock acquire: %w", err)
	}
	if !held {
		s.logg.Info(ctx, "cron.cycle.skipped_lock_held")
		return false, nil
	}
	defer func() {
		if err := s.lock.Release(ctx); err != nil {
			s.logg.Error(ctx, "cron.lock.release_failed", err)
		}
	}()

	for _, job := range s.jobs.Jobs() {
		s.run(ctx, job)
	}
	return true, nil
}

func (s *Service) run(ctx context.Context, job Job) {
	name := job.Name()
	ctx = s.logg.WithField(ctx, "job", name)

	started := time.Now()
	err := job.Run(ctx)
	took := time.Since(started)

	if s.observer != nil {
		s.observer.ObserveRun(name, took, err)
	}
	ctx = s.logg.WithField(ctx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.logg.Error(ctx, "cron.job.failed", err)
		return
	}
	s.logg.Info(ctx, "cron.job.done")
}
