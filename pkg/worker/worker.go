package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/petrijr/flowexec/internal/taskqueue"
	"github.com/petrijr/flowexec/pkg/api"
)

// ResultHandler observes every processed task. res is nil when err is set.
type ResultHandler func(task taskqueue.Task, res *api.Result, err error)

// Config controls how a Worker postpones deliveries to locked executions.
type Config struct {
	// MaxAttempts bounds how often a task is postponed because its execution
	// is locked by another request. Zero means 5.
	MaxAttempts int
	// Backoff is the delay before the first redelivery; it doubles on every
	// further attempt. Zero means 50ms.
	Backoff time.Duration

	Logger   *slog.Logger
	OnResult ResultHandler
}

// Worker pulls tasks from a Queue and delivers them to an Executor.
type Worker struct {
	executor api.Executor
	queue    taskqueue.Queue
	cfg      Config
	logger   *slog.Logger
}

// New creates a Worker with the default Config.
func New(executor api.Executor, queue taskqueue.Queue) *Worker {
	return NewWithConfig(executor, queue, Config{})
}

// NewWithConfig creates a Worker.
func NewWithConfig(executor api.Executor, queue taskqueue.Queue, cfg Config) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 50 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{executor: executor, queue: queue, cfg: cfg, logger: logger}
}

// EnqueueLaunch enqueues a launch of flowID. It does NOT run the flow
// itself; that is done by ProcessOne.
func (w *Worker) EnqueueLaunch(ctx context.Context, flowID string, input map[string]any) error {
	return w.EnqueueLaunchAt(ctx, flowID, input, time.Time{})
}

// EnqueueLaunchAt enqueues a launch of flowID no earlier than at.
func (w *Worker) EnqueueLaunchAt(ctx context.Context, flowID string, input map[string]any, at time.Time) error {
	return w.queue.Enqueue(ctx, taskqueue.Task{
		Type:      taskqueue.TaskTypeLaunch,
		FlowID:    flowID,
		Input:     input,
		NotBefore: at,
	})
}

// EnqueueEvent enqueues delivery of eventID to the execution paused under
// key.
func (w *Worker) EnqueueEvent(ctx context.Context, key, eventID string, params map[string]string) error {
	return w.EnqueueEventAt(ctx, key, eventID, params, time.Time{})
}

// EnqueueEventAt enqueues delivery of eventID no earlier than at, e.g. a
// timeout event for a view nobody answered. If the execution has moved on
// by then the delivery fails like any stale request would.
func (w *Worker) EnqueueEventAt(ctx context.Context, key, eventID string, params map[string]string, at time.Time) error {
	if _, err := api.ParseKey(key); err != nil {
		return err
	}
	return w.queue.Enqueue(ctx, taskqueue.Task{
		Type:      taskqueue.TaskTypeResume,
		Key:       key,
		EventID:   eventID,
		Params:    params,
		NotBefore: at,
	})
}

// ProcessOne pulls a single task from the queue and processes it.
// Returns (processed, error):
//   - processed == false: no task was obtained; err is the dequeue error.
//   - processed == true: a task was processed; err is the delivery error,
//     or nil when a locked execution caused the task to be postponed.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	task, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	res, err := w.deliver(ctx, task)
	if errors.Is(err, api.ErrExecutionLocked) && task.Attempts+1 < w.cfg.MaxAttempts {
		return true, w.postpone(ctx, *task)
	}

	if err != nil {
		w.logger.Warn("task_failed",
			"task_id", task.ID, "task_type", task.Type, "flow_id", task.FlowID,
			"key", task.Key, "event", task.EventID, "attempts", task.Attempts+1, "error", err)
	} else {
		w.logger.Debug("task_processed",
			"task_id", task.ID, "task_type", task.Type, "flow_id", res.FlowID, "status", res.Status)
	}
	if w.cfg.OnResult != nil {
		w.cfg.OnResult(*task, res, err)
	}
	return true, err
}

func (w *Worker) deliver(ctx context.Context, task *taskqueue.Task) (*api.Result, error) {
	switch task.Type {
	case taskqueue.TaskTypeLaunch:
		ext := api.NewLocalExternalContext("", task.Params)
		return w.executor.LaunchExecution(ctx, task.FlowID, task.Input, ext)
	case taskqueue.TaskTypeResume:
		ext := api.NewLocalExternalContext(task.EventID, task.Params)
		return w.executor.ResumeExecution(ctx, task.Key, ext)
	default:
		return nil, fmt.Errorf("unknown task type: %q", task.Type)
	}
}

func (w *Worker) postpone(ctx context.Context, task taskqueue.Task) error {
	delay := w.cfg.Backoff << task.Attempts
	task.Attempts++
	task.NotBefore = time.Now().Add(delay)
	w.logger.Info("task_postponed",
		"task_id", task.ID, "key", task.Key, "attempts", task.Attempts, "delay", delay)
	return w.queue.Enqueue(ctx, task)
}

// Run processes tasks with the given number of goroutines until ctx is
// cancelled. Delivery errors are logged and reported to OnResult; they do
// not stop the worker.
func (w *Worker) Run(ctx context.Context, concurrency int) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	w.logger.Info("worker_started", "concurrency", concurrency)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		queueErr error
	)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				processed, err := w.ProcessOne(ctx)
				if ctx.Err() != nil {
					return
				}
				if !processed && err != nil {
					mu.Lock()
					if queueErr == nil {
						queueErr = err
					}
					mu.Unlock()
					cancel()
					return
				}
			}
		}()
	}
	wg.Wait()
	w.logger.Info("worker_stopped")

	mu.Lock()
	defer mu.Unlock()
	return queueErr
}
