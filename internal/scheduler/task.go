package scheduler

import (
	"context"
	"time"
)

// Priority orders automation work. Higher values always win the next
// dequeue decision.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical

	numPriorities = 4
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ProgressFunc reports task progress back to the scheduler. Implementations
// of Task.Action should call it on every meaningful step; the scheduler
// checks the entry's cancellation handle on each tick.
type ProgressFunc func(percent int, step string)

// Task is a named unit of asynchronous automation work. Immutable once
// queued.
type Task struct {
	ID          string
	Description string
	Action      func(ctx context.Context, report ProgressFunc) error
}

// entry wraps a Task with scheduling state. Created at enqueue time and
// consumed exactly once by the worker.
type entry struct {
	id           string
	task         *Task
	priority     Priority
	scheduledFor time.Time
	enqueuedAt   time.Time

	ctx    context.Context
	cancel context.CancelFunc
}
