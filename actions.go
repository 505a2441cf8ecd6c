package flowexec

import (
	"context"
	"io"

	"github.com/petrijr/flowexec/pkg/api"
	"github.com/petrijr/flowexec/pkg/expr"
)

// Set returns an action storing the value of x under name in scope.
func Set(scope api.ScopeType, name string, x Expression) Action {
	return api.SetAction(scope, name, x)
}

// SignalEvent returns an action that always yields eventID.
func SignalEvent(eventID string) Action {
	return api.ActionFunc(func(api.RequestContext) (api.Event, error) {
		return api.EventOf(eventID), nil
	})
}

// JS compiles a JavaScript expression, panicking on syntax errors.
func JS(src string) Expression {
	return expr.MustJS(src)
}

// Path compiles a JSONPath expression, panicking on syntax errors.
func Path(src string) Expression {
	return expr.MustPath(src)
}

// Evaluate returns an action signalling the result of x: strings become
// the event id, booleans yes/no.
func Evaluate(x Expression) Action {
	return expr.Action(x)
}

// Script returns an action running JavaScript src, panicking on syntax
// errors.
func Script(src string) Action {
	return expr.Action(expr.MustJS(src))
}

// TypedAction wraps a strongly-typed function into an Action. The result is
// stored under name in scope and the action signals success.
//
// Example:
//
//	flowexec.TypedAction(api.ScopeFlow, "persons", func(ctx context.Context, rc api.RequestContext) ([]any, error) { ... })
func TypedAction[T any](scope api.ScopeType, name string, fn func(context.Context, api.RequestContext) (T, error)) Action {
	return api.ActionFunc(func(rc api.RequestContext) (api.Event, error) {
		v, err := fn(rc.Context(), rc)
		if err != nil {
			return api.Event{}, err
		}
		m, err := rc.Scope(scope)
		if err != nil {
			return api.Event{}, err
		}
		m.Put(name, v)
		return api.Success(), nil
	})
}

// TextView returns a view factory writing render(rc) to the external
// context writer.
func TextView(render func(rc api.RequestContext, w io.Writer) error) api.ViewFactory {
	return api.StaticView(api.ViewFunc(func(rc api.RequestContext) error {
		return render(rc, rc.External().Writer())
	}))
}
