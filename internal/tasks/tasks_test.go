package tasks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestRunner(h Handler) *Runner {
	return NewRunner(RunnerOptions{
		Handler:    h,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		Logger:     zerolog.Nop(),
	})
}

func TestRunner_SucceedsAfterRetries(t *testing.T) {
	var calls int32
	r := newTestRunner(HandlerFunc(func(ctx context.Context, task Task) Result {
		if atomic.AddInt32(&calls, 1) < 3 {
			return Retryable(errors.New("rpc timeout"))
		}
		return Success()
	}))

	res := r.Run(context.Background(), NewTask("0xaa", "base", testNow))
	assert.True(t, res.OK())
	assert.Equal(t, int32(3), calls)
}

func TestRunner_GivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	r := newTestRunner(HandlerFunc(func(ctx context.Context, task Task) Result {
		atomic.AddInt32(&calls, 1)
		return Retryable(errors.New("rpc timeout"))
	}))

	res := r.Run(context.Background(), NewTask("0xaa", "base", testNow))
	assert.Equal(t, OutcomeRetryable, res.Outcome)
	assert.EqualError(t, res.Err, "rpc timeout")
	assert.Equal(t, int32(3), calls, "first attempt plus two retries")
}

func TestRunner_PermanentIsNotRetried(t *testing.T) {
	var calls int32
	r := newTestRunner(HandlerFunc(func(ctx context.Context, task Task) Result {
		atomic.AddInt32(&calls, 1)
		return Permanent(errors.New("token not found"))
	}))

	res := r.Run(context.Background(), NewTask("0xaa", "base", testNow))
	assert.Equal(t, OutcomePermanent, res.Outcome)
	assert.Equal(t, int32(1), calls)
}

func TestRunner_RetryableWithoutError(t *testing.T) {
	r := NewRunner(RunnerOptions{
		Handler:    HandlerFunc(func(ctx context.Context, task Task) Result { return Result{Outcome: OutcomeRetryable} }),
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
		Logger:     zerolog.Nop(),
	})
	res := r.Run(context.Background(), NewTask("0xaa", "base", testNow))
	assert.Equal(t, OutcomeRetryable, res.Outcome)
	assert.ErrorIs(t, res.Err, errUnspecified)
}

func TestRunner_StopsOnCancelledContext(t *testing.T) {
	var calls int32
	r := newTestRunner(HandlerFunc(func(ctx context.Context, task Task) Result {
		atomic.AddInt32(&calls, 1)
		return Retryable(ctx.Err())
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := r.Run(ctx, NewTask("0xaa", "base", testNow))
	assert.Equal(t, OutcomeRetryable, res.Outcome)
	assert.Equal(t, int32(1), calls)
}

func TestRunner_AttemptTimeout(t *testing.T) {
	r := NewRunner(RunnerOptions{
		Handler: HandlerFunc(func(ctx context.Context, task Task) Result {
			<-ctx.Done()
			return Retryable(ctx.Err())
		}),
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
		Timeout:    5 * time.Millisecond,
		Logger:     zerolog.Nop(),
	})
	res := r.Run(context.Background(), NewTask("0xaa", "base", testNow))
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "success", OutcomeSuccess.String())
	assert.Equal(t, "retryable", OutcomeRetryable.String())
	assert.Equal(t, "permanent", OutcomePermanent.String())
}

func TestTask_Key(t *testing.T) {
	task := NewTask("0xaa", "base", testNow)
	assert.Equal(t, "base:0xaa", task.Key())
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, testNow.UnixMilli(), task.EnqueuedAt)
	assert.NotEqual(t, task.ID, NewTask("0xaa", "base", testNow).ID)
}

func TestLocalQueue_DeduplicatesQueuedTokens(t *testing.T) {
	q := NewLocalQueue(LocalQueueOptions{
		Runner: newTestRunner(HandlerFunc(func(ctx context.Context, task Task) Result { return Success() })),
		Logger: zerolog.Nop(),
	})
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "0xaa", "base"))
	require.NoError(t, q.Enqueue(ctx, "0xaa", "base"))
	require.NoError(t, q.Enqueue(ctx, "0xaa", "ethereum"))
	assert.Equal(t, 2, q.Pending())
}

func TestLocalQueue_RunsTasks(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
		wg   sync.WaitGroup
	)
	wg.Add(3)
	q := NewLocalQueue(LocalQueueOptions{
		Runner: newTestRunner(HandlerFunc(func(ctx context.Context, task Task) Result {
			mu.Lock()
			seen = append(seen, task.Key())
			mu.Unlock()
			wg.Done()
			return Success()
		})),
		Workers: 2,
		Now:     func() time.Time { return testNow },
		Logger:  zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	for _, addr := range []string{"0x01", "0x02", "0x03"} {
		require.NoError(t, q.Enqueue(ctx, addr, "base"))
	}

	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	wg.Wait()
	cancel()
	require.NoError(t, <-done)

	assert.ElementsMatch(t, []string{"base:0x01", "base:0x02", "base:0x03"}, seen)
	assert.ErrorIs(t, q.Enqueue(context.Background(), "0x04", "base"), ErrQueueClosed)
}

func TestLocalQueue_RequeueAfterStart(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls int32
	q := NewLocalQueue(LocalQueueOptions{
		Runner: newTestRunner(HandlerFunc(func(ctx context.Context, task Task) Result {
			if atomic.AddInt32(&calls, 1) == 1 {
				close(started)
				<-release
			}
			return Success()
		})),
		Workers: 1,
		Logger:  zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, q.Enqueue(ctx, "0xaa", "base"))
	go func() { _ = q.Run(ctx) }()

	<-started
	require.NoError(t, q.Enqueue(ctx, "0xaa", "base"))
	assert.Equal(t, 1, q.Pending(), "a running task does not block a new one")
	close(release)
}

func TestLocalQueue_FullBufferHonorsContext(t *testing.T) {
	q := NewLocalQueue(LocalQueueOptions{Buffer: 1, Logger: zerolog.Nop()})
	require.NoError(t, q.Enqueue(context.Background(), "0x01", "base"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Enqueue(ctx, "0x02", "base"), context.DeadlineExceeded)

	// The failed key is released and may be queued later.
	q.mu.Lock()
	_, held := q.queued["base:0x02"]
	q.mu.Unlock()
	assert.False(t, held)
}

func TestTaskRecordRoundTrip(t *testing.T) {
	task := NewTask("0xaa", "base", testNow)
	rec, err := encodeTask("sentinel.tasks", task)
	require.NoError(t, err)
	assert.Equal(t, "sentinel.tasks", rec.Topic)
	assert.Equal(t, []byte("base:0xaa"), rec.Key)
	require.Len(t, rec.Headers, 1)
	assert.Equal(t, task.ID, string(rec.Headers[0].Value))

	got, err := decodeTask(rec)
	require.NoError(t, err)
	assert.Equal(t, task, got)
}

func TestDecodeTask_Rejects(t *testing.T) {
	_, err := decodeTask(&kgo.Record{Value: []byte("{not json")})
	assert.Error(t, err)

	_, err = decodeTask(&kgo.Record{Value: []byte(`{"id":"x","chain":"base"}`)})
	assert.Error(t, err)
}

func TestNewKafkaQueue_Validates(t *testing.T) {
	_, err := NewKafkaQueue(KafkaQueueOptions{Topic: "t", Logger: zerolog.Nop()})
	assert.Error(t, err)

	_, err = NewKafkaQueue(KafkaQueueOptions{Brokers: []string{"localhost:9092"}, Logger: zerolog.Nop()})
	assert.Error(t, err)

	_, err = NewKafkaQueue(KafkaQueueOptions{
		Brokers: []string{"localhost:9092"},
		Topic:   "t",
		Runner:  newTestRunner(HandlerFunc(func(ctx context.Context, task Task) Result { return Success() })),
		Logger:  zerolog.Nop(),
	})
	assert.Error(t, err, "consumer without group id")
}

type fakeSweeper struct {
	n     int
	err   error
	limit int
}

func (f *fakeSweeper) RunPendingAnalyses(ctx context.Context, limit int) (int, error) {
	f.limit = limit
	return f.n, f.err
}

type fakeRetrier struct {
	n   int
	err error
}

func (f *fakeRetrier) RetrySkipped(ctx context.Context, limit int) (int, error) {
	return f.n, f.err
}

func TestScheduler_SweepOnce(t *testing.T) {
	sw := &fakeSweeper{n: 4}
	s := NewScheduler(SchedulerOptions{
		Sweeper:  sw,
		Retriers: []SkipRetrier{&fakeRetrier{n: 1}, &fakeRetrier{n: 2}},
		Batch:    25,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, s.SweepOnce(context.Background()))
	assert.Equal(t, 25, sw.limit)
}

func TestScheduler_SweepOnceJoinsErrors(t *testing.T) {
	sweepErr := errors.New("db down")
	retryErr := errors.New("rpc down")
	s := NewScheduler(SchedulerOptions{
		Sweeper:  &fakeSweeper{err: sweepErr},
		Retriers: []SkipRetrier{&fakeRetrier{err: retryErr}, &fakeRetrier{n: 1}},
		Logger:   zerolog.Nop(),
	})
	err := s.SweepOnce(context.Background())
	assert.ErrorIs(t, err, sweepErr)
	assert.ErrorIs(t, err, retryErr)
}

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	s := NewScheduler(SchedulerOptions{
		Sweeper:  &fakeSweeper{},
		Interval: time.Hour,
		Logger:   zerolog.Nop(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, s.Run(ctx))
}
