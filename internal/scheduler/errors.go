package scheduler

import "errors"

var (
	// ErrTaskNotFound is returned for ids that are not in the live list
	ErrTaskNotFound = errors.New("task not found")
	// ErrInvalidTask wraps structural validation failures at enqueue time
	ErrInvalidTask = errors.New("invalid task")
	// ErrClosed is returned after Shutdown
	ErrClosed = errors.New("scheduler is shut down")
	// ErrNotRetryable is returned when retrying a task that has not failed
	ErrNotRetryable = errors.New("only failed tasks can be retried")
)
