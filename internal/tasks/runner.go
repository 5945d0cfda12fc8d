package tasks

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"sentinel-ledger/internal/observability"
)

// Runner executes a task, retrying retryable failures a bounded number
// of times with a fixed delay.
type Runner struct {
	handler    Handler
	maxRetries uint64
	retryDelay time.Duration
	timeout    time.Duration
	logger     zerolog.Logger
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Handler    Handler
	MaxRetries uint64        // retries after the first attempt, default 3
	RetryDelay time.Duration // default 60s
	Timeout    time.Duration // per attempt, 0 disables
	Logger     zerolog.Logger
}

// NewRunner creates a new task runner.
func NewRunner(opts RunnerOptions) *Runner {
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 60 * time.Second
	}
	return &Runner{
		handler:    opts.Handler,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		timeout:    opts.Timeout,
		logger:     opts.Logger,
	}
}

// Run executes t until it succeeds, fails permanently, runs out of
// retries or ctx is cancelled. It returns the last attempt's result.
func (r *Runner) Run(ctx context.Context, t Task) Result {
	start := time.Now()
	var last Result
	attempt := 0

	op := func() error {
		attempt++
		last = r.attempt(ctx, t)
		switch last.Outcome {
		case OutcomeSuccess:
			return nil
		case OutcomePermanent:
			return backoff.Permanent(last.Err)
		default:
			return last.Err
		}
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.retryDelay), r.maxRetries),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		r.logger.Warn().Err(err).
			Str("task", t.ID).
			Str("token", t.Address).
			Str("chain", t.Chain).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Msg("analysis attempt failed, retrying")
	}

	// The operation always runs at least once, so last is set.
	_ = backoff.RetryNotify(op, policy, notify)

	observability.RecordAnalysis(last.Outcome.String(), time.Since(start).Seconds())

	switch last.Outcome {
	case OutcomeSuccess:
		r.logger.Debug().Str("task", t.ID).Str("token", t.Address).Int("attempts", attempt).Msg("task done")
	case OutcomePermanent:
		r.logger.Warn().Err(last.Err).Str("task", t.ID).Str("token", t.Address).Msg("task failed permanently")
	default:
		r.logger.Error().Err(last.Err).Str("task", t.ID).Str("token", t.Address).Int("attempts", attempt).Msg("task gave up")
	}
	return last
}

func (r *Runner) attempt(ctx context.Context, t Task) Result {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	res := r.handler.Handle(ctx, t)
	if res.Outcome == OutcomeRetryable && res.Err == nil {
		res.Err = errUnspecified
	}
	return res
}
