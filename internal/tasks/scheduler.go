package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper enqueues analyses for tokens that were never analyzed.
type Sweeper interface {
	RunPendingAnalyses(ctx context.Context, limit int) (int, error)
}

// SkipRetrier re-attempts blocks a listener had to skip.
type SkipRetrier interface {
	RetrySkipped(ctx context.Context, limit int) (int, error)
}

// Scheduler drives the periodic sweep.
type Scheduler struct {
	sweeper  Sweeper
	retriers []SkipRetrier
	interval time.Duration
	batch    int
	logger   zerolog.Logger
}

// SchedulerOptions contains configuration for creating a Scheduler.
type SchedulerOptions struct {
	Sweeper  Sweeper
	Retriers []SkipRetrier // one per chain listener, optional
	Interval time.Duration // default 5m
	Batch    int           // default 100
	Logger   zerolog.Logger
}

// NewScheduler creates a new sweep scheduler.
func NewScheduler(opts SchedulerOptions) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.Batch <= 0 {
		opts.Batch = 100
	}
	return &Scheduler{
		sweeper:  opts.Sweeper,
		retriers: opts.Retriers,
		interval: opts.Interval,
		batch:    opts.Batch,
		logger:   opts.Logger,
	}
}

// Run sweeps immediately and then on every tick until ctx is cancelled.
// Sweep failures are logged; the next tick tries again.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("sweep failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// SweepOnce enqueues one batch of pending tokens and retries skipped blocks.
func (s *Scheduler) SweepOnce(ctx context.Context) error {
	var errs []error

	n, err := s.sweeper.RunPendingAnalyses(ctx, s.batch)
	if err != nil {
		errs = append(errs, err)
	}

	resolved := 0
	for _, r := range s.retriers {
		k, err := r.RetrySkipped(ctx, s.batch)
		resolved += k
		if err != nil {
			errs = append(errs, err)
		}
	}

	s.logger.Info().Int("enqueued", n).Int("blocks_resolved", resolved).Msg("sweep done")
	return errors.Join(errs...)
}
