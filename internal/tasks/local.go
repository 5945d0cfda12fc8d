package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sentinel-ledger/internal/observability"
)

// LocalQueue is an in-process worker pool. A token already waiting in the
// queue is not queued twice.
type LocalQueue struct {
	runner  *Runner
	workers int
	ch      chan Task
	now     func() time.Time
	logger  zerolog.Logger

	mu     sync.Mutex
	queued map[string]struct{}
	closed bool
}

// LocalQueueOptions contains configuration for creating a LocalQueue.
type LocalQueueOptions struct {
	Runner  *Runner
	Workers int // default 4
	Buffer  int // default 1024
	Now     func() time.Time
	Logger  zerolog.Logger
}

// NewLocalQueue creates a new local worker pool.
func NewLocalQueue(opts LocalQueueOptions) *LocalQueue {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 1024
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &LocalQueue{
		runner:  opts.Runner,
		workers: opts.Workers,
		ch:      make(chan Task, opts.Buffer),
		now:     opts.Now,
		logger:  opts.Logger,
		queued:  make(map[string]struct{}),
	}
}

// Enqueue schedules an analysis of (address, chain).
func (q *LocalQueue) Enqueue(ctx context.Context, address, chain string) error {
	return q.Submit(ctx, NewTask(address, chain, q.now()))
}

// Submit queues t, blocking while the buffer is full.
func (q *LocalQueue) Submit(ctx context.Context, t Task) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	if _, dup := q.queued[t.Key()]; dup {
		q.mu.Unlock()
		return nil
	}
	q.queued[t.Key()] = struct{}{}
	q.mu.Unlock()

	select {
	case q.ch <- t:
		observability.RecordTaskEnqueued("local")
		return nil
	case <-ctx.Done():
		q.release(t)
		return ctx.Err()
	}
}

// Pending returns the number of queued, not yet started tasks.
func (q *LocalQueue) Pending() int {
	return len(q.ch)
}

// Run starts the workers and blocks until ctx is cancelled. Tasks still
// queued at that point are dropped; the sweep picks them up again.
func (q *LocalQueue) Run(ctx context.Context) error {
	q.logger.Info().Int("workers", q.workers).Msg("local task queue started")

	var wg sync.WaitGroup
	for i := 0; i < q.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.work(ctx)
		}()
	}
	wg.Wait()

	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.logger.Info().Int("dropped", len(q.ch)).Msg("local task queue stopped")
	return nil
}

func (q *LocalQueue) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-q.ch:
			q.release(t)
			q.runner.Run(ctx, t)
		}
	}
}

func (q *LocalQueue) release(t Task) {
	q.mu.Lock()
	delete(q.queued, t.Key())
	q.mu.Unlock()
}
