package model

// TaskStatus represents the status of a download or conversion task
type TaskStatus string

const (
	// TaskStatusPending means the task is queued but not admitted
	TaskStatusPending TaskStatus = "Pending"

	// TaskStatusRunning means the task was admitted and owns a concurrency slot
	TaskStatusRunning TaskStatus = "Running"

	// TaskStatusCompleted means the task finished successfully
	TaskStatusCompleted TaskStatus = "Completed"

	// TaskStatusFailed means the task failed and waits for dismissal
	TaskStatusFailed TaskStatus = "Failed"

	// TaskStatusCancelled means the task was cancelled by the caller
	TaskStatusCancelled TaskStatus = "Cancelled"
)

// String returns the string representation of TaskStatus
func (ts TaskStatus) String() string {
	return string(ts)
}

// IsActive returns true if the task currently occupies a concurrency slot
func (ts TaskStatus) IsActive() bool {
	return ts == TaskStatusRunning
}

// IsTerminal returns true if the task is in a finished state (completed, failed, or cancelled)
func (ts TaskStatus) IsTerminal() bool {
	return ts == TaskStatusCompleted || ts == TaskStatusFailed || ts == TaskStatusCancelled
}

// CanTransition reports whether moving from ts to next keeps the lifecycle monotonic.
// Terminal states are final and nothing returns to Pending.
func (ts TaskStatus) CanTransition(next TaskStatus) bool {
	if ts.IsTerminal() || next == TaskStatusPending {
		return false
	}
	switch ts {
	case TaskStatusPending:
		return next == TaskStatusRunning || next == TaskStatusCancelled || next == TaskStatusFailed
	case TaskStatusRunning:
		return next.IsTerminal()
	}
	return false
}
