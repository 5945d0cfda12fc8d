package tasks

import "errors"

var (
	// ErrQueueClosed is returned when enqueuing on a stopped queue.
	ErrQueueClosed = errors.New("task queue closed")

	errUnspecified = errors.New("retryable failure")
)
