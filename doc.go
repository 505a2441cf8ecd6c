// Package flowexec provides an embeddable engine for conversational flows:
// multi-step user interactions whose execution spans many independent
// request/response cycles.
//
// A flow is a graph of named states. Executing it walks the graph until a
// View state is reached, renders the view and pauses. The paused execution is
// snapshotted into a repository under a key; the next request carries the key
// and an event id, the execution is restored and continues from the view.
//
// # Core Concepts
//
//  1. Flow and State
//  2. Executor
//  3. FlowBuilder
//  4. Scopes
//  5. Listeners and exception handlers
//  6. Deferred events
//
// # Flows and states
//
// A Flow holds an ordered list of states and global transitions. Every state
// is one of five kinds:
//
//   - Action: runs actions and routes on the first result with a matching
//     transition
//   - View: renders a view and pauses the execution
//   - Decision: routes immediately on expressions or the current event
//   - Subflow: starts a nested flow session and resumes on its outcome
//   - End: maps output and ends the active session
//
// Transitions are matched in declaration order, state-local before global.
// The event id "*" matches every event.
//
// # Executor
//
// The Executor launches flows by id and resumes paused executions by key:
//
//	x := flowexec.NewInMemoryExecutor()
//	flowexec.New("greet").
//	    View("ask", askView).On("submit", "done").
//	    End("done").
//	    MustRegister(x)
//
//	res, _ := x.LaunchExecution(ctx, "greet", nil, ext)   // res.Key = "e...s1"
//	res, _ = x.ResumeExecution(ctx, res.Key, submitCtx)   // res.IsEnded()
//
// Persistent executors keep paused executions in SQLite, PostgreSQL or Redis.
// A lease held for the duration of a resume serializes concurrent requests to
// the same execution.
//
// # Scopes
//
// Attributes live in request, flash, view, flow, conversation and
// application scopes. Unqualified lookups search request, flash, view, flow
// and conversation in that order. Flash attributes survive exactly one
// following request.
//
// # Listeners and exception handlers
//
// Objects implementing any of the hook interfaces in pkg/api receive
// lifecycle callbacks. LoggingListener, BasicMetrics and the OpenTelemetry
// listener in pkg/tracing ship with the engine.
//
// Faults raised while executing a state are offered to the state's handlers,
// then the flow's, innermost session first. A handler may recover by
// returning a transition; an unhandled fault discards the execution.
//
// # Deferred events
//
// pkg/worker delivers launches and events from a Queue in the background.
// An event scheduled with a NotBefore time, such as a timeout for an
// unanswered view, reaches the execution like any other request:
//
//	w := worker.New(x, flowexec.NewInMemoryQueue())
//	_ = w.EnqueueEventAt(ctx, res.Key, "timeout", nil, time.Now().Add(time.Minute))
//	go w.Run(ctx, 2)
package flowexec
