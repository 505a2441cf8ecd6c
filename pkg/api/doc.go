// Package api contains the core building blocks used by the flowexec flow
// execution engine. It provides the primitives for defining flows, the
// contracts user code implements, and the listener hooks used to observe
// executions.
//
// Most users interact with the higher-level flowexec package, which
// re-exports selected types and offers a fluent FlowBuilder. The api package
// is intended for custom integrations, alternative expression languages and
// contributors extending the engine.
//
// # Flows and States
//
// A Flow is an ordered set of States plus global transitions, mappers and
// exception handlers. Each State has a Kind:
//
//   - Action: runs actions and routes on the first result that matches a
//     transition.
//   - View: renders a view and pauses the execution until the next request.
//   - Decision: routes on the current event or on expressions.
//   - Subflow: starts a child flow session and routes on its outcome.
//   - End: terminates the active session.
//
// Flows are immutable once assembled and are shared by every execution.
//
// # Scopes
//
// Variables live in scopes of different lifetimes: request, flash, view,
// flow, conversation and application. Lookups without an explicit scope
// search request, flash, view, flow and conversation in that order.
//
// # Request Context
//
// Every action, expression, view, exception handler and listener receives a
// RequestContext for the start or resume call in progress. There is no
// ambient global context.
//
// # Observability
//
// ExecutionListener values implement any subset of the hook interfaces.
// LoggingListener and BasicMetrics are ready-made implementations.
package api
