// Package tracing records flow execution lifecycle events on the
// OpenTelemetry span active in the request context.
//
// The executor opens a span per launch and resume call; this listener
// annotates it with session, state, transition and view events. Without a
// configured TracerProvider the spans are no-ops.
package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/petrijr/flowexec/pkg/api"
)

// Listener is an api.ExecutionListener writing span events.
type Listener struct{}

// NewListener returns a tracing listener.
func NewListener() *Listener { return &Listener{} }

func span(rc api.RequestContext) trace.Span {
	return trace.SpanFromContext(rc.Context())
}

func flowAttr(s api.FlowSession) attribute.KeyValue {
	return attribute.String("flowexec.flow_id", s.Definition().ID)
}

func (Listener) SessionStarted(rc api.RequestContext, s api.FlowSession) {
	span(rc).AddEvent("flowexec.session_started", trace.WithAttributes(
		flowAttr(s),
		attribute.Bool("flowexec.root", s.IsRoot()),
	))
}

func (Listener) SessionEnded(rc api.RequestContext, s api.FlowSession, outcome string, _ *api.AttributeMap) {
	span(rc).AddEvent("flowexec.session_ended", trace.WithAttributes(
		flowAttr(s),
		attribute.String("flowexec.outcome", outcome),
	))
}

func (Listener) StateEntered(rc api.RequestContext, _, state *api.State) {
	span(rc).AddEvent("flowexec.state_entered", trace.WithAttributes(
		attribute.String("flowexec.state_id", state.ID),
		attribute.String("flowexec.state_kind", string(state.Kind)),
	))
}

func (Listener) TransitionExecuting(rc api.RequestContext, t *api.Transition) {
	span(rc).AddEvent("flowexec.transition", trace.WithAttributes(
		attribute.String("flowexec.transition", t.String()),
		attribute.String("flowexec.event", rc.CurrentEvent().ID),
	))
}

func (Listener) ViewRendered(rc api.RequestContext, state *api.State) {
	span(rc).AddEvent("flowexec.view_rendered", trace.WithAttributes(
		attribute.String("flowexec.state_id", state.ID),
	))
}

func (Listener) Paused(rc api.RequestContext) {
	attrs := []attribute.KeyValue{}
	if k := rc.Execution().Key(); k != nil {
		attrs = append(attrs, attribute.String("flowexec.key", k.String()))
	}
	span(rc).AddEvent("flowexec.paused", trace.WithAttributes(attrs...))
}

func (Listener) ExceptionThrown(rc api.RequestContext, err *api.FlowExecutionError) {
	span(rc).RecordError(err, trace.WithAttributes(
		attribute.String("flowexec.flow_id", err.FlowID),
		attribute.String("flowexec.state_id", err.StateID),
	))
}
