// Package taskqueue holds flow requests that are delivered later or by a
// background worker instead of the caller's own request cycle.
package taskqueue

import (
	"context"
	"time"
)

// TaskType identifies what the worker should do.
type TaskType string

const (
	// TaskTypeLaunch starts a new execution of FlowID.
	TaskTypeLaunch TaskType = "launch"
	// TaskTypeResume delivers EventID to the execution stored under Key.
	TaskTypeResume TaskType = "resume"
)

// Task is one deferred flow request.
type Task struct {
	ID   string
	Type TaskType

	// For launch tasks
	FlowID string
	Input  map[string]any

	// For resume tasks
	Key     string
	EventID string

	// Params become the request parameters of the delivered request.
	Params map[string]string

	EnqueuedAt time.Time

	// NotBefore is the earliest time this task should be eligible
	// for processing. Zero value means immediately.
	NotBefore time.Time

	// Attempts counts deliveries that were postponed because the
	// execution was locked.
	Attempts int
}

// Due reports whether t may be processed at now.
func (t Task) Due(now time.Time) bool {
	return t.NotBefore.IsZero() || !t.NotBefore.After(now)
}

// Queue is a simple async task queue interface.
type Queue interface {
	// Enqueue adds a task to the queue. It should respect ctx for cancellation.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue removes and returns the next due task, blocking until one is
	// available or the context is cancelled.
	Dequeue(ctx context.Context) (*Task, error)

	// Len returns the approximate number of tasks queued, due or not.
	Len() int
}
