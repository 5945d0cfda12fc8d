// Package tasks runs token analyses: a tagged task outcome, a runner with
// bounded fixed-delay retries, local and Kafka-backed queues, and the
// periodic sweep that feeds them.
package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Outcome tags a task result.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRetryable
	OutcomePermanent
)

// String returns the metric label of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	case OutcomePermanent:
		return "permanent"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Result is what a handler reports for one attempt.
type Result struct {
	Outcome Outcome
	Err     error
}

// Success reports a completed task.
func Success() Result { return Result{Outcome: OutcomeSuccess} }

// Retryable reports a failure that may succeed on a later attempt.
func Retryable(err error) Result { return Result{Outcome: OutcomeRetryable, Err: err} }

// Permanent reports a failure that retrying cannot fix.
func Permanent(err error) Result { return Result{Outcome: OutcomePermanent, Err: err} }

// OK reports whether the task succeeded.
func (r Result) OK() bool { return r.Outcome == OutcomeSuccess }

// Task asks for one token to be analyzed.
type Task struct {
	ID         string `json:"id"`
	Address    string `json:"address"`
	Chain      string `json:"chain"`
	EnqueuedAt int64  `json:"enqueued_at"` // ms
}

// NewTask creates a task with a fresh ID.
func NewTask(address, chain string, now time.Time) Task {
	return Task{
		ID:         uuid.NewString(),
		Address:    address,
		Chain:      chain,
		EnqueuedAt: now.UnixMilli(),
	}
}

// Key identifies the token a task is about.
func (t Task) Key() string {
	return t.Chain + ":" + t.Address
}

// Handler executes one attempt of a task.
type Handler interface {
	Handle(ctx context.Context, t Task) Result
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, t Task) Result

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, t Task) Result { return f(ctx, t) }
