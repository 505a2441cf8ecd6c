package api

import (
	"log/slog"
	"slices"
	"sync/atomic"
	"time"
)

// ExecutionListener observes an execution. A listener implements any subset
// of the hook interfaces below; the engine calls only the hooks a listener
// implements, in registration order.
//
// Listeners should be fast and non-blocking; they run on the request path.
type ExecutionListener any

// Hook enumerates the listener callbacks.
type Hook int

const (
	HookRequestSubmitted Hook = iota
	HookRequestProcessed
	HookSessionCreating
	HookSessionStarting
	HookSessionStarted
	HookEventSignaled
	HookTransitionExecuting
	HookStateEntering
	HookStateEntered
	HookViewRendering
	HookViewRendered
	HookPaused
	HookResuming
	HookSessionEnding
	HookSessionEnded
	HookExceptionThrown
)

var hookNames = [...]string{
	"requestSubmitted",
	"requestProcessed",
	"sessionCreating",
	"sessionStarting",
	"sessionStarted",
	"eventSignaled",
	"transitionExecuting",
	"stateEntering",
	"stateEntered",
	"viewRendering",
	"viewRendered",
	"paused",
	"resuming",
	"sessionEnding",
	"sessionEnded",
	"exceptionThrown",
}

func (h Hook) String() string {
	if h < 0 || int(h) >= len(hookNames) {
		return "unknown"
	}
	return hookNames[h]
}

type RequestSubmittedListener interface {
	RequestSubmitted(rc RequestContext)
}

type RequestProcessedListener interface {
	RequestProcessed(rc RequestContext)
}

type SessionCreatingListener interface {
	SessionCreating(rc RequestContext, flow *Flow)
}

type SessionStartingListener interface {
	SessionStarting(rc RequestContext, session FlowSession, input *AttributeMap)
}

type SessionStartedListener interface {
	SessionStarted(rc RequestContext, session FlowSession)
}

type EventSignaledListener interface {
	EventSignaled(rc RequestContext, event Event)
}

type TransitionExecutingListener interface {
	TransitionExecuting(rc RequestContext, t *Transition)
}

// StateEnteringListener may veto entering a state by returning an error,
// which is raised as a fault of the current state.
type StateEnteringListener interface {
	StateEntering(rc RequestContext, state *State) error
}

type StateEnteredListener interface {
	StateEntered(rc RequestContext, previous, state *State)
}

type ViewRenderingListener interface {
	ViewRendering(rc RequestContext, state *State)
}

type ViewRenderedListener interface {
	ViewRendered(rc RequestContext, state *State)
}

type PausedListener interface {
	Paused(rc RequestContext)
}

type ResumingListener interface {
	Resuming(rc RequestContext)
}

type SessionEndingListener interface {
	SessionEnding(rc RequestContext, session FlowSession, outcome string, output *AttributeMap)
}

type SessionEndedListener interface {
	SessionEnded(rc RequestContext, session FlowSession, outcome string, output *AttributeMap)
}

type ExceptionThrownListener interface {
	ExceptionThrown(rc RequestContext, err *FlowExecutionError)
}

// Implements reports whether l implements hook h.
func (h Hook) Implements(l ExecutionListener) bool {
	var ok bool
	switch h {
	case HookRequestSubmitted:
		_, ok = l.(RequestSubmittedListener)
	case HookRequestProcessed:
		_, ok = l.(RequestProcessedListener)
	case HookSessionCreating:
		_, ok = l.(SessionCreatingListener)
	case HookSessionStarting:
		_, ok = l.(SessionStartingListener)
	case HookSessionStarted:
		_, ok = l.(SessionStartedListener)
	case HookEventSignaled:
		_, ok = l.(EventSignaledListener)
	case HookTransitionExecuting:
		_, ok = l.(TransitionExecutingListener)
	case HookStateEntering:
		_, ok = l.(StateEnteringListener)
	case HookStateEntered:
		_, ok = l.(StateEnteredListener)
	case HookViewRendering:
		_, ok = l.(ViewRenderingListener)
	case HookViewRendered:
		_, ok = l.(ViewRenderedListener)
	case HookPaused:
		_, ok = l.(PausedListener)
	case HookResuming:
		_, ok = l.(ResumingListener)
	case HookSessionEnding:
		_, ok = l.(SessionEndingListener)
	case HookSessionEnded:
		_, ok = l.(SessionEndedListener)
	case HookExceptionThrown:
		_, ok = l.(ExceptionThrownListener)
	}
	return ok
}

// ListenerLoader selects the listeners attached to executions of a flow.
type ListenerLoader interface {
	ListenersFor(flow *Flow) []ExecutionListener
}

type listenerEntry struct {
	listener ExecutionListener
	flowIDs  []string
}

func (e listenerEntry) appliesTo(flowID string) bool {
	return len(e.flowIDs) == 0 || slices.Contains(e.flowIDs, AnyEvent) || slices.Contains(e.flowIDs, flowID)
}

// StaticListenerLoader attaches a fixed set of listeners, each optionally
// restricted to a list of flow ids ("*" or none means every flow).
type StaticListenerLoader struct {
	entries []listenerEntry
}

// NewStaticListenerLoader returns a loader attaching listeners to every
// flow.
func NewStaticListenerLoader(listeners ...ExecutionListener) *StaticListenerLoader {
	l := &StaticListenerLoader{}
	for _, x := range listeners {
		l.Add(x)
	}
	return l
}

// Add registers listener for the given flow ids.
func (l *StaticListenerLoader) Add(listener ExecutionListener, flowIDs ...string) *StaticListenerLoader {
	if listener != nil {
		l.entries = append(l.entries, listenerEntry{listener: listener, flowIDs: flowIDs})
	}
	return l
}

// ListenersFor implements ListenerLoader.
func (l *StaticListenerLoader) ListenersFor(flow *Flow) []ExecutionListener {
	if l == nil || flow == nil {
		return nil
	}
	var out []ExecutionListener
	for _, e := range l.entries {
		if e.appliesTo(flow.ID) {
			out = append(out, e.listener)
		}
	}
	return out
}

// LoggingListener writes structured logs using log/slog.
type LoggingListener struct {
	Logger *slog.Logger
}

// NewLoggingListener creates a listener that logs session, state and
// request lifecycle events. If logger is nil, slog.Default() is used.
func NewLoggingListener(logger *slog.Logger) *LoggingListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingListener{Logger: logger}
}

func executionAttrs(rc RequestContext) []any {
	attrs := make([]any, 0, 3)
	if exec := rc.Execution(); exec != nil {
		if def := exec.Definition(); def != nil {
			attrs = append(attrs, slog.String("flow", def.ID))
		}
		if k := exec.Key(); k != nil {
			attrs = append(attrs, slog.String("key", k.String()))
		}
	}
	return attrs
}

func (o *LoggingListener) SessionStarted(rc RequestContext, s FlowSession) {
	o.Logger.InfoContext(rc.Context(), "session_started", append(executionAttrs(rc),
		slog.String("session_flow", s.Definition().ID),
		slog.Bool("root", s.IsRoot()),
	)...)
}

func (o *LoggingListener) StateEntered(rc RequestContext, previous, state *State) {
	from := ""
	if previous != nil {
		from = previous.ID
	}
	o.Logger.DebugContext(rc.Context(), "state_entered", append(executionAttrs(rc),
		slog.String("from", from),
		slog.String("state", state.ID),
		slog.String("kind", string(state.Kind)),
	)...)
}

func (o *LoggingListener) TransitionExecuting(rc RequestContext, t *Transition) {
	o.Logger.DebugContext(rc.Context(), "transition_executing", append(executionAttrs(rc),
		slog.String("transition", t.String()),
		slog.String("event", rc.CurrentEvent().ID),
	)...)
}

func (o *LoggingListener) Paused(rc RequestContext) {
	state := ""
	if s := rc.CurrentState(); s != nil {
		state = s.ID
	}
	o.Logger.InfoContext(rc.Context(), "execution_paused", append(executionAttrs(rc),
		slog.String("state", state),
	)...)
}

func (o *LoggingListener) Resuming(rc RequestContext) {
	o.Logger.InfoContext(rc.Context(), "execution_resuming", append(executionAttrs(rc),
		slog.String("event", rc.External().EventID()),
	)...)
}

func (o *LoggingListener) SessionEnded(rc RequestContext, s FlowSession, outcome string, output *AttributeMap) {
	o.Logger.InfoContext(rc.Context(), "session_ended", append(executionAttrs(rc),
		slog.String("session_flow", s.Definition().ID),
		slog.String("outcome", outcome),
		slog.Int("output_size", output.Len()),
	)...)
}

func (o *LoggingListener) ExceptionThrown(rc RequestContext, err *FlowExecutionError) {
	o.Logger.ErrorContext(rc.Context(), "exception_thrown", append(executionAttrs(rc),
		slog.String("state", err.StateID),
		slog.Any("error", err.Err),
	)...)
}

const metricsStartAttribute = "metrics.requestStart"

// BasicMetrics collects simple counters and aggregate request durations.
// It is safe to share across executions.
type BasicMetrics struct {
	requests           atomic.Int64
	sessionsStarted    atomic.Int64
	sessionsEnded      atomic.Int64
	statesEntered      atomic.Int64
	transitions        atomic.Int64
	pauses             atomic.Int64
	exceptions         atomic.Int64
	totalRequestTimeNs atomic.Int64
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	Requests        int64
	SessionsStarted int64
	SessionsEnded   int64
	ActiveSessions  int64
	StatesEntered   int64
	Transitions     int64
	Pauses          int64
	Exceptions      int64

	AvgRequestDuration time.Duration
}

func (m *BasicMetrics) RequestSubmitted(rc RequestContext) {
	rc.Attributes().Put(metricsStartAttribute, time.Now())
}

func (m *BasicMetrics) RequestProcessed(rc RequestContext) {
	m.requests.Add(1)
	if start, ok := GetAs[time.Time](rc.Attributes(), metricsStartAttribute); ok {
		m.totalRequestTimeNs.Add(time.Since(start).Nanoseconds())
	}
}

func (m *BasicMetrics) SessionStarted(RequestContext, FlowSession) {
	m.sessionsStarted.Add(1)
}

func (m *BasicMetrics) SessionEnded(RequestContext, FlowSession, string, *AttributeMap) {
	m.sessionsEnded.Add(1)
}

func (m *BasicMetrics) StateEntered(RequestContext, *State, *State) {
	m.statesEntered.Add(1)
}

func (m *BasicMetrics) TransitionExecuting(RequestContext, *Transition) {
	m.transitions.Add(1)
}

func (m *BasicMetrics) Paused(RequestContext) {
	m.pauses.Add(1)
}

func (m *BasicMetrics) ExceptionThrown(RequestContext, *FlowExecutionError) {
	m.exceptions.Add(1)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	requests := m.requests.Load()
	started := m.sessionsStarted.Load()
	ended := m.sessionsEnded.Load()

	var avg time.Duration
	if requests > 0 {
		avg = time.Duration(m.totalRequestTimeNs.Load() / requests)
	}

	return BasicMetricsSnapshot{
		Requests:           requests,
		SessionsStarted:    started,
		SessionsEnded:      ended,
		ActiveSessions:     started - ended,
		StatesEntered:      m.statesEntered.Load(),
		Transitions:        m.transitions.Load(),
		Pauses:             m.pauses.Load(),
		Exceptions:         m.exceptions.Load(),
		AvgRequestDuration: avg,
	}
}
