package tracing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/petrijr/flowexec/internal/engine"
	"github.com/petrijr/flowexec/pkg/api"
	"github.com/petrijr/flowexec/pkg/tracing"
)

func eventNames(s sdktrace.ReadOnlySpan) []string {
	var names []string
	for _, ev := range s.Events() {
		names = append(names, ev.Name)
	}
	return names
}

func TestListenerAnnotatesExecutorSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	x := engine.NewExecutor(engine.Config{
		Listeners:      api.NewStaticListenerLoader(tracing.NewListener()),
		TracerProvider: tp,
	})
	boom := errors.New("boom")
	require.NoError(t, x.RegisterFlow(&api.Flow{ID: "traced", States: []*api.State{
		{ID: "ask", Kind: api.KindView, Transitions: []*api.Transition{
			{Criteria: api.On("go"), Target: api.To("done")},
			{Criteria: api.On("fail"), Target: api.To("explode")},
		}},
		{ID: "explode", Kind: api.KindAction, Actions: []api.Action{api.ActionFunc(func(api.RequestContext) (api.Event, error) {
			return api.Event{}, boom
		})}, Transitions: []*api.Transition{{Criteria: api.Any(), Target: api.To("done")}}},
		{ID: "done", Kind: api.KindEnd},
	}}))
	ctx := context.Background()

	res, err := x.LaunchExecution(ctx, "traced", nil, nil)
	require.NoError(t, err)
	_, err = x.ResumeExecution(ctx, res.Key, api.NewLocalExternalContext("go", nil))
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 2)
	require.Equal(t, []string{
		"flowexec.session_started",
		"flowexec.state_entered",
		"flowexec.view_rendered",
		"flowexec.paused",
	}, eventNames(spans[0]))
	require.Equal(t, []string{
		"flowexec.transition",
		"flowexec.state_entered",
		"flowexec.session_ended",
	}, eventNames(spans[1]))

	res, err = x.LaunchExecution(ctx, "traced", nil, nil)
	require.NoError(t, err)
	_, err = x.ResumeExecution(ctx, res.Key, api.NewLocalExternalContext("fail", nil))
	require.ErrorIs(t, err, boom)

	failed := sr.Ended()[3]
	require.Contains(t, eventNames(failed), "exception")
}

func TestListenerWithoutSpan(t *testing.T) {
	x := engine.NewExecutor(engine.Config{Listeners: api.NewStaticListenerLoader(tracing.NewListener())})
	require.NoError(t, x.RegisterFlow(&api.Flow{ID: "plain", States: []*api.State{{ID: "done", Kind: api.KindEnd}}}))

	res, err := x.LaunchExecution(context.Background(), "plain", nil, nil)
	require.NoError(t, err)
	require.True(t, res.IsEnded())
}
