// Package worker delivers queued flow requests in the background.
//
// A Worker consumes tasks from a taskqueue.Queue and hands them to an
// api.Executor: launch tasks start a new execution, resume tasks deliver an
// event to a paused one. Scheduling a resume task with a NotBefore time is
// how a flow gets a timeout event for a view that nobody answered:
//
//	w := worker.New(executor, taskqueue.NewInMemoryQueue())
//	_ = w.EnqueueEventAt(ctx, res.Key, "timeout", nil, time.Now().Add(15*time.Minute))
//	go w.Run(ctx, 4)
//
// # Locked executions
//
// An execution is leased for the duration of a resume. When a delivery
// finds its execution locked by a concurrent request, the task is put back
// on the queue with an exponential backoff instead of failing, up to
// Config.MaxAttempts deliveries.
//
// # Results
//
// Every delivery is logged. Config.OnResult receives the task together with
// the executor result or error, which lets callers record outcomes of flows
// that ran without a user present.
//
// Multiple workers can safely operate on the same queue; the queue hands
// each task to exactly one of them.
package worker
