package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/flowexec/pkg/api"
)

var errBoom = errors.New("boom")

// exposingView renders the flash message and root cause left by the
// handler into *msg and *cause.
func exposingView(id string, msg *string, cause *error) *api.State {
	return &api.State{
		ID:   id,
		Kind: api.KindView,
		View: &api.ViewSpec{Factory: api.StaticView(api.ViewFunc(func(rc api.RequestContext) error {
			*msg = rc.FlashScope().GetString(api.FlowExecutionExceptionMessageAttribute)
			if v, ok := rc.RequestScope().Get(api.RootCauseExceptionAttribute); ok {
				*cause, _ = v.(error)
			}
			return nil
		}))},
	}
}

func TestStateExceptionHandler(t *testing.T) {
	var (
		msg   string
		cause error
	)
	work := actionState("work", fail(errBoom), on(api.EventSuccess, "done"))
	work.ExceptionHandlers = []api.ExceptionHandler{api.NewTransitionExecutingHandler(api.To("oops"), api.ErrorIs(errBoom))}
	rec := &recorder{}
	reg := newRegistry(t, flow("f", work, exposingView("oops", &msg, &cause), endState("done")))
	exec := newExecution(t, reg, "f", rec)

	require.NoError(t, exec.Start(context.Background(), nil, event("")))
	require.Equal(t, "oops", currentStateID(t, exec))
	require.Equal(t, "boom", msg)
	require.ErrorIs(t, cause, errBoom)
	require.True(t, rec.has("exceptionThrown:f:work"))
}

func TestHandlerMatchersSelectFaults(t *testing.T) {
	errOther := errors.New("other")
	work := actionState("work", fail(errOther), on(api.EventSuccess, "done"))
	work.ExceptionHandlers = []api.ExceptionHandler{
		api.NewTransitionExecutingHandler(api.To("boom"), api.ErrorIs(errBoom)),
		api.NewTransitionExecutingHandler(api.To("typed"), api.ErrorOfType[*api.NoMatchingTransitionError]()),
	}
	f := flow("f", work, viewState("boom"), viewState("typed"), viewState("other"), endState("done"))
	f.ExceptionHandlers = []api.ExceptionHandler{api.NewTransitionExecutingHandler(api.To("other"))}
	reg := newRegistry(t, f)
	exec := newExecution(t, reg, "f")

	require.NoError(t, exec.Start(context.Background(), nil, event("")))
	require.Equal(t, "other", currentStateID(t, exec))
}

func TestParentFlowHandlerAbandonsChild(t *testing.T) {
	var (
		msg   string
		cause error
	)
	parent := flow("p",
		subflowState("sub", "c", &api.Transition{Criteria: api.Any(), Target: api.To("end")}),
		exposingView("recovered", &msg, &cause),
		endState("end"),
	)
	parent.ExceptionHandlers = []api.ExceptionHandler{api.NewTransitionExecutingHandler(api.To("recovered"), api.ErrorIs(errBoom))}
	child := flow("c",
		viewState("ask", on("go", "explode")),
		actionState("explode", fail(errBoom), on(api.EventSuccess, "done")),
		endState("done"),
	)
	rec := &recorder{}
	reg := newRegistry(t, parent, child)
	exec := newExecution(t, reg, "p", rec)
	ctx := context.Background()

	require.NoError(t, exec.Start(ctx, nil, event("")))
	require.Equal(t, 2, exec.Depth())

	require.NoError(t, exec.Resume(ctx, event("go")))
	require.Equal(t, 1, exec.Depth())
	require.Equal(t, "recovered", currentStateID(t, exec))
	require.Equal(t, "boom", msg)
	require.True(t, rec.has("exceptionThrown:c:explode"))
	require.True(t, rec.has("sessionEnded:c:"))
	require.False(t, rec.has("sessionEnded:c:done"))

	s, _ := exec.ActiveSession()
	require.Equal(t, api.SessionPaused, s.Status())
}

func TestHandlerWithoutTargetRerendersView(t *testing.T) {
	var (
		msg   string
		cause error
	)
	form := exposingView("form", &msg, &cause)
	form.Transitions = []*api.Transition{on("save", "done", fail(errBoom))}
	form.ExceptionHandlers = []api.ExceptionHandler{api.NewTransitionExecutingHandler(nil)}
	reg := newRegistry(t, flow("f", form, endState("done")))
	exec := newExecution(t, reg, "f")
	ctx := context.Background()

	require.NoError(t, exec.Start(ctx, nil, event("")))
	require.Empty(t, msg)
	require.NoError(t, exec.Resume(ctx, event("save")))
	require.Equal(t, "form", currentStateID(t, exec))
	require.Equal(t, "boom", msg)
	require.True(t, exec.IsActive())
}

func TestUnhandledFaultDiscardsExecution(t *testing.T) {
	rec := &recorder{}
	reg := newRegistry(t, flow("f",
		viewState("ask", on("go", "explode")),
		actionState("explode", fail(errBoom), on(api.EventSuccess, "done")),
		endState("done"),
	))
	exec := newExecution(t, reg, "f", rec)
	ctx := context.Background()

	require.NoError(t, exec.Start(ctx, nil, event("")))
	require.NotNil(t, exec.Key())

	err := exec.Resume(ctx, event("go"))
	var fe *api.FlowExecutionError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, "f", fe.FlowID)
	require.Equal(t, "explode", fe.StateID)
	require.ErrorIs(t, err, errBoom)
	require.Equal(t, errBoom, fe.RootCause())

	require.True(t, exec.IsDiscarded())
	require.Nil(t, exec.Key())
	require.True(t, rec.has("exceptionThrown:f:explode"))
	require.ErrorIs(t, exec.Resume(ctx, event("go")), api.ErrExecutionDiscarded)
	require.ErrorIs(t, exec.Start(ctx, nil, event("")), api.ErrExecutionDiscarded)
}

func TestFailingHandlerIsOfferedToTheChain(t *testing.T) {
	errHandler := errors.New("handler failed")
	work := actionState("work", fail(errBoom), on(api.EventSuccess, "done"))
	work.ExceptionHandlers = []api.ExceptionHandler{&api.TransitionExecutingHandler{
		Matchers: []api.ErrorMatcher{api.ErrorIs(errBoom)},
		Actions:  []api.Action{fail(errHandler)},
		Target:   api.To("done"),
	}}
	f := flow("f", work, viewState("fallback"), endState("done"))
	f.ExceptionHandlers = []api.ExceptionHandler{api.NewTransitionExecutingHandler(api.To("fallback"), api.ErrorIs(errHandler))}
	reg := newRegistry(t, f)
	exec := newExecution(t, reg, "f")

	require.NoError(t, exec.Start(context.Background(), nil, event("")))
	require.Equal(t, "fallback", currentStateID(t, exec))
}
