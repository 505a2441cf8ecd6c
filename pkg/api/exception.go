package api

import "errors"

// Attribute names under which TransitionExecutingHandler exposes a fault.
const (
	FlowExecutionExceptionAttribute        = "flowExecutionException"
	RootCauseExceptionAttribute            = "rootCauseException"
	FlowExecutionExceptionMessageAttribute = "flowExecutionExceptionMessage"
)

// ExceptionHandler recovers from runtime faults. Handlers are consulted on
// the current state first, then on its flow, for every session from the
// top of the stack down.
type ExceptionHandler interface {
	CanHandle(err *FlowExecutionError) bool
	// Handle returns the transition to execute. A nil transition keeps a
	// View state current and re-renders it; from any other state the fault
	// stays unhandled.
	Handle(rc RequestContext, err *FlowExecutionError) (*Transition, error)
}

// ErrorMatcher selects faults by their cause.
type ErrorMatcher func(err error) bool

// ErrorIs matches faults wrapping target.
func ErrorIs(target error) ErrorMatcher {
	return func(err error) bool { return errors.Is(err, target) }
}

// ErrorOfType matches faults wrapping an error of type T.
func ErrorOfType[T error]() ErrorMatcher {
	return func(err error) bool {
		var t T
		return errors.As(err, &t)
	}
}

// TransitionExecutingHandler exposes the fault to the flow and transitions
// to a recovery state.
type TransitionExecutingHandler struct {
	// Matchers select the faults handled; none means every fault.
	Matchers []ErrorMatcher
	// Actions run after the fault has been exposed and before the
	// transition.
	Actions []Action
	// Target resolves the recovery state; nil re-renders a View state.
	Target TargetResolver
}

var _ ExceptionHandler = (*TransitionExecutingHandler)(nil)

// NewTransitionExecutingHandler returns a handler transitioning to target
// for faults matching any of the matchers.
func NewTransitionExecutingHandler(target TargetResolver, matchers ...ErrorMatcher) *TransitionExecutingHandler {
	return &TransitionExecutingHandler{Target: target, Matchers: matchers}
}

// CanHandle implements ExceptionHandler.
func (h *TransitionExecutingHandler) CanHandle(err *FlowExecutionError) bool {
	if len(h.Matchers) == 0 {
		return true
	}
	for _, m := range h.Matchers {
		if m(err) {
			return true
		}
	}
	return false
}

// Handle implements ExceptionHandler.
func (h *TransitionExecutingHandler) Handle(rc RequestContext, err *FlowExecutionError) (*Transition, error) {
	cause := err.RootCause()
	rc.RequestScope().Put(FlowExecutionExceptionAttribute, err)
	rc.RequestScope().Put(RootCauseExceptionAttribute, cause)
	rc.FlashScope().Put(FlowExecutionExceptionMessageAttribute, cause.Error())
	if err := RunActions(rc, h.Actions); err != nil {
		return nil, err
	}
	return &Transition{Target: h.Target}, nil
}
