package taskqueue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryQueue keeps tasks in process memory, ordered by NotBefore and
// then by enqueue order. It is safe for concurrent use.
type InMemoryQueue struct {
	mu    sync.Mutex
	tasks []queued
	seq   uint64
	// wakeup is closed and replaced on every enqueue, waking all waiters.
	wakeup chan struct{}
}

type queued struct {
	task Task
	due  time.Time
	seq  uint64
}

// NewInMemoryQueue creates an empty queue.
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{wakeup: make(chan struct{})}
}

// Ensure InMemoryQueue implements Queue.
var _ Queue = (*InMemoryQueue)(nil)

func (q *InMemoryQueue) Enqueue(ctx context.Context, t Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prepare(&t, time.Now())

	q.mu.Lock()
	q.seq++
	q.tasks = append(q.tasks, queued{task: t, due: t.NotBefore, seq: q.seq})
	sort.SliceStable(q.tasks, func(i, j int) bool {
		if !q.tasks[i].due.Equal(q.tasks[j].due) {
			return q.tasks[i].due.Before(q.tasks[j].due)
		}
		return q.tasks[i].seq < q.tasks[j].seq
	})
	close(q.wakeup)
	q.wakeup = make(chan struct{})
	q.mu.Unlock()
	return nil
}

func (q *InMemoryQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		t, wait, wakeup := q.next(time.Now())
		if t != nil {
			return t, nil
		}

		var (
			tm    *time.Timer
			timer <-chan time.Time
		)
		if wait > 0 {
			tm = time.NewTimer(wait)
			timer = tm.C
		}
		select {
		case <-ctx.Done():
			if tm != nil {
				tm.Stop()
			}
			return nil, ctx.Err()
		case <-wakeup:
		case <-timer:
		}
		if tm != nil {
			tm.Stop()
		}
	}
}

// next pops the head when it is due; otherwise it returns how long to wait
// for it, or zero when the queue is empty, along with the channel the next
// enqueue closes.
func (q *InMemoryQueue) next(now time.Time) (*Task, time.Duration, <-chan struct{}) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return nil, 0, q.wakeup
	}
	head := q.tasks[0]
	if !head.task.Due(now) {
		return nil, head.due.Sub(now), q.wakeup
	}
	q.tasks = q.tasks[1:]
	t := head.task
	return &t, 0, nil
}

func (q *InMemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// prepare fills in the id and timestamps of a task being enqueued.
func prepare(t *Task, now time.Time) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = now
	}
	if t.NotBefore.IsZero() {
		t.NotBefore = t.EnqueuedAt
	}
}
