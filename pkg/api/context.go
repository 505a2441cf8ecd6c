package api

import (
	"bytes"
	"context"
	"io"
)

// RequestContext is the explicit per-call context handed to every action,
// expression, view, exception handler and listener. It is valid only for
// the duration of one start/resume call.
type RequestContext interface {
	MappingSource

	// Context returns the context of the start/resume call.
	Context() context.Context
	// External returns the calling environment.
	External() ExternalContext
	// Execution returns the execution being driven.
	Execution() FlowExecutionContext
	// ActiveSession returns the session at the top of the stack.
	ActiveSession() (FlowSession, error)
	// ActiveFlow returns the flow of the active session, or nil.
	ActiveFlow() *Flow
	// CurrentState returns the current state of the active session, or nil.
	CurrentState() *State
	// CurrentEvent returns the last event signalled in this request.
	CurrentEvent() Event
	// CurrentTransition returns the transition being executed, or nil.
	CurrentTransition() *Transition

	RequestScope() *AttributeMap
	FlashScope() *AttributeMap
	FlowScope() *AttributeMap
	ViewScope() (*AttributeMap, error)
	ConversationScope() *AttributeMap
	ApplicationScope() *AttributeMap
	// Scope returns the named scope.
	Scope(t ScopeType) (*AttributeMap, error)

	// Attributes are request-context attributes; they are never persisted.
	Attributes() *AttributeMap
}

// RedirectKind classifies a redirect requested through the external context.
type RedirectKind int

const (
	RedirectNone RedirectKind = iota
	// RedirectFlowExecution asks the caller to redirect to the paused
	// execution's own URL so the view renders on a fresh request.
	RedirectFlowExecution
	// RedirectExternal asks the caller to redirect to Location.
	RedirectExternal
)

// Redirect is a redirect request recorded on the external context.
type Redirect struct {
	Kind     RedirectKind
	Location string
	Popup    bool
}

// ExternalContext abstracts the environment that called into the engine:
// the inbound event, request parameters, attribute maps of the hosting
// container and the response hooks.
type ExternalContext interface {
	// EventID returns the inbound event id; empty means refresh.
	EventID() string
	// Parameter returns a request parameter.
	Parameter(name string) (string, bool)
	// Parameters returns every request parameter.
	Parameters() map[string]string
	RequestMap() *AttributeMap
	SessionMap() *AttributeMap
	ApplicationMap() *AttributeMap
	// Writer receives rendered view output.
	Writer() io.Writer
	// RequestRedirect records a redirect for the caller to perform.
	RequestRedirect(r Redirect)
	// Redirect returns the recorded redirect, if any.
	Redirect() Redirect
}

// LocalExternalContext is an in-process ExternalContext used by tests, the
// CLI and embedded callers.
type LocalExternalContext struct {
	Event       string
	Params      map[string]string
	Request     *AttributeMap
	Session     *AttributeMap
	Application *AttributeMap
	Output      bytes.Buffer

	redirect Redirect
}

var _ ExternalContext = (*LocalExternalContext)(nil)

// NewLocalExternalContext returns a context delivering event with the given
// request parameters.
func NewLocalExternalContext(event string, params map[string]string) *LocalExternalContext {
	if params == nil {
		params = make(map[string]string)
	}
	return &LocalExternalContext{
		Event:       event,
		Params:      params,
		Request:     NewAttributeMap(),
		Session:     NewAttributeMap(),
		Application: NewAttributeMap(),
	}
}

func (c *LocalExternalContext) EventID() string { return c.Event }

func (c *LocalExternalContext) Parameter(name string) (string, bool) {
	v, ok := c.Params[name]
	return v, ok
}

func (c *LocalExternalContext) Parameters() map[string]string { return c.Params }

func (c *LocalExternalContext) RequestMap() *AttributeMap     { return c.Request }
func (c *LocalExternalContext) SessionMap() *AttributeMap     { return c.Session }
func (c *LocalExternalContext) ApplicationMap() *AttributeMap { return c.Application }
func (c *LocalExternalContext) Writer() io.Writer             { return &c.Output }
func (c *LocalExternalContext) RequestRedirect(r Redirect)    { c.redirect = r }
func (c *LocalExternalContext) Redirect() Redirect            { return c.redirect }

// Expression is evaluated against the live request context. Concrete
// expression languages live in pkg/expr.
type Expression interface {
	Evaluate(rc RequestContext) (any, error)
}

// ExpressionFunc adapts a function to Expression.
type ExpressionFunc func(rc RequestContext) (any, error)

// Evaluate implements Expression.
func (f ExpressionFunc) Evaluate(rc RequestContext) (any, error) {
	return f(rc)
}

// Value returns an expression that always evaluates to v.
func Value(v any) Expression {
	return ExpressionFunc(func(RequestContext) (any, error) { return v, nil })
}

// Attribute returns an expression that looks name up through the scope
// search order.
func Attribute(name string) Expression {
	return ExpressionFunc(func(rc RequestContext) (any, error) {
		v, _ := rc.Lookup(name)
		return v, nil
	})
}

// View renders a response for a View state.
type View interface {
	Render(rc RequestContext) error
}

// ViewFunc adapts a function to View.
type ViewFunc func(rc RequestContext) error

// Render implements View.
func (f ViewFunc) Render(rc RequestContext) error {
	return f(rc)
}

// ViewFactory creates the view for a View state on each render.
type ViewFactory interface {
	View(rc RequestContext) (View, error)
}

// ViewFactoryFunc adapts a function to ViewFactory.
type ViewFactoryFunc func(rc RequestContext) (View, error)

// View implements ViewFactory.
func (f ViewFactoryFunc) View(rc RequestContext) (View, error) {
	return f(rc)
}

// StaticView returns a factory that always yields v.
func StaticView(v View) ViewFactory {
	return ViewFactoryFunc(func(RequestContext) (View, error) { return v, nil })
}
