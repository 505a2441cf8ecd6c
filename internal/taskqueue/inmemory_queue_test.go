package taskqueue

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryQueue(t *testing.T) {
	queueContract(t, func(*testing.T) Queue { return NewInMemoryQueue() })
}

func TestInMemoryQueue_EarlierTaskOvertakesWaitingOne(t *testing.T) {
	q := NewInMemoryQueue()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := q.Enqueue(ctx, Task{Key: "later", NotBefore: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	result := make(chan string, 1)
	go func() {
		tk, err := q.Dequeue(ctx)
		if err != nil {
			result <- err.Error()
			return
		}
		result <- tk.Key
	}()

	time.Sleep(20 * time.Millisecond)
	if err := q.Enqueue(ctx, Task{Key: "now"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if got := <-result; got != "now" {
		t.Fatalf("expected the due task to wake the consumer, got %q", got)
	}
}

func TestInMemoryQueue_EnqueueHonorsCancelledContext(t *testing.T) {
	q := NewInMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := q.Enqueue(ctx, Task{Key: "x"}); err == nil {
		t.Fatalf("expected Enqueue to fail on a cancelled context")
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue, got %d", q.Len())
	}
}

func TestInMemoryQueue_EnqueueWakesEveryWaiter(t *testing.T) {
	q := NewInMemoryQueue()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	const waiters = 3
	got := make(chan string, waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			tk, err := q.Dequeue(ctx)
			if err != nil {
				got <- err.Error()
				return
			}
			got <- tk.Key
		}()
	}

	time.Sleep(20 * time.Millisecond)
	for _, key := range []string{"a", "b", "c"} {
		if err := q.Enqueue(ctx, Task{Key: key}); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	seen := map[string]bool{}
	for i := 0; i < waiters; i++ {
		seen[<-got] = true
	}
	for _, key := range []string{"a", "b", "c"} {
		if !seen[key] {
			t.Fatalf("expected every waiter to receive a task, got %v", seen)
		}
	}
}
