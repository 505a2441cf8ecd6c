package taskqueue

import (
	"context"
	"sync"
	"testing"
	"time"
)

// queueContract exercises behaviour every Queue implementation shares.
func queueContract(t *testing.T, newQueue func(t *testing.T) Queue) {
	t.Run("fifo", func(t *testing.T) {
		q := newQueue(t)
		ctx := context.Background()

		for _, key := range []string{"e1s1", "e2s1", "e3s1"} {
			if err := q.Enqueue(ctx, Task{Type: TaskTypeResume, Key: key, EventID: "next"}); err != nil {
				t.Fatalf("Enqueue %s failed: %v", key, err)
			}
			// Distinct enqueue instants keep ordering well defined across backends.
			time.Sleep(2 * time.Millisecond)
		}
		if q.Len() != 3 {
			t.Fatalf("expected Len 3, got %d", q.Len())
		}

		for _, want := range []string{"e1s1", "e2s1", "e3s1"} {
			got, err := q.Dequeue(ctx)
			if err != nil {
				t.Fatalf("Dequeue failed: %v", err)
			}
			if got.Key != want {
				t.Fatalf("expected %s, got %s", want, got.Key)
			}
			if got.ID == "" || got.EnqueuedAt.IsZero() {
				t.Fatalf("expected id and enqueue time to be assigned, got %+v", got)
			}
		}
		if q.Len() != 0 {
			t.Fatalf("expected Len 0 after dequeues, got %d", q.Len())
		}
	})

	t.Run("fields survive", func(t *testing.T) {
		q := newQueue(t)
		ctx := context.Background()

		in := Task{
			Type:   TaskTypeLaunch,
			FlowID: "person.Search",
			Input:  map[string]any{"lastName": "Don", "tags": []any{"a", 1}},
			Params: map[string]string{"page": "2"},
		}
		if err := q.Enqueue(ctx, in); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
		got, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue failed: %v", err)
		}
		if got.Type != TaskTypeLaunch || got.FlowID != "person.Search" {
			t.Fatalf("unexpected task: %+v", got)
		}
		if got.Input["lastName"] != "Don" || got.Params["page"] != "2" {
			t.Fatalf("unexpected input or params: %v %v", got.Input, got.Params)
		}
	})

	t.Run("blocks until a task arrives", func(t *testing.T) {
		q := newQueue(t)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		result := make(chan *Task, 1)
		go func() {
			tk, err := q.Dequeue(ctx)
			if err != nil {
				result <- nil
				return
			}
			result <- tk
		}()

		time.Sleep(50 * time.Millisecond)
		if err := q.Enqueue(context.Background(), Task{Type: TaskTypeResume, Key: "late"}); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}

		select {
		case tk := <-result:
			if tk == nil || tk.Key != "late" {
				t.Fatalf("unexpected task from Dequeue: %+v", tk)
			}
		case <-ctx.Done():
			t.Fatalf("timeout waiting for Dequeue to return")
		}
	})

	t.Run("not before", func(t *testing.T) {
		q := newQueue(t)
		ctx := context.Background()
		delay := 80 * time.Millisecond

		if err := q.Enqueue(ctx, Task{Type: TaskTypeResume, Key: "delayed", NotBefore: time.Now().Add(delay)}); err != nil {
			t.Fatalf("Enqueue delayed failed: %v", err)
		}
		if err := q.Enqueue(ctx, Task{Type: TaskTypeResume, Key: "immediate"}); err != nil {
			t.Fatalf("Enqueue immediate failed: %v", err)
		}

		first, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue first failed: %v", err)
		}
		if first.Key != "immediate" {
			t.Fatalf("expected the immediate task first, got %s", first.Key)
		}

		start := time.Now()
		second, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue second failed: %v", err)
		}
		if second.Key != "delayed" {
			t.Fatalf("expected the delayed task, got %s", second.Key)
		}
		if elapsed := time.Since(start); elapsed < delay/2 {
			t.Fatalf("expected elapsed >= %v, got %v", delay/2, elapsed)
		}
	})

	t.Run("cancel while waiting", func(t *testing.T) {
		q := newQueue(t)
		delay := 500 * time.Millisecond
		if err := q.Enqueue(context.Background(), Task{Type: TaskTypeResume, Key: "x", NotBefore: time.Now().Add(delay)}); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
		defer cancel()
		start := time.Now()
		if _, err := q.Dequeue(ctx); err == nil {
			t.Fatalf("expected Dequeue to fail due to context cancellation")
		}
		if elapsed := time.Since(start); elapsed >= delay {
			t.Fatalf("Dequeue did not honor cancellation; elapsed=%v", elapsed)
		}
		if q.Len() != 1 {
			t.Fatalf("expected the pending task to stay queued, got Len %d", q.Len())
		}
	})

	t.Run("concurrent dequeue delivers once", func(t *testing.T) {
		q := newQueue(t)
		ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
		defer cancel()

		if err := q.Enqueue(ctx, Task{Type: TaskTypeResume, Key: "once"}); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}

		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			count int
		)
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if tk, err := q.Dequeue(ctx); err == nil && tk != nil {
					mu.Lock()
					count++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		if count != 1 {
			t.Fatalf("expected exactly one delivery, got %d", count)
		}
	})
}
