package engine

import (
	"errors"

	"github.com/petrijr/flowexec/pkg/api"
)

// unhandleable reports faults that are always surfaced to the caller.
func unhandleable(err error) bool {
	return errors.Is(err, api.ErrStepLimitExceeded) || api.IsMappingError(err) || api.IsRestoreError(err)
}

// wrapFault attaches the active flow and state to err.
func (e *Execution) wrapFault(err error) *api.FlowExecutionError {
	var fe *api.FlowExecutionError
	if errors.As(err, &fe) {
		return fe
	}
	fe = &api.FlowExecutionError{FlowID: e.flowID, Err: err}
	if s := e.active(); s != nil {
		fe.FlowID = s.flowIdentity()
		fe.StateID = s.stateIdentity()
	}
	return fe
}

// handleFault offers a fault to the exception handler chain: the current
// state's handlers then its flow's handlers, for each session from the top
// of the stack down. Sessions above the handling one are abandoned. It
// returns the step to continue with, or the fault if nobody handled it.
func (e *Execution) handleFault(rc *requestContext, err error) (step, error) {
	if unhandleable(err) {
		return done, err
	}
	fe := e.wrapFault(err)
	e.bus.exceptionThrown(rc, fe)

	for i := len(e.sessions) - 1; i >= 0; i-- {
		s := e.sessions[i]
		var handlers []api.ExceptionHandler
		if s.state != nil {
			handlers = append(handlers, s.state.ExceptionHandlers...)
		}
		handlers = append(handlers, s.flow.ExceptionHandlers...)

		for _, h := range handlers {
			if !h.CanHandle(fe) {
				continue
			}
			e.abandonAbove(rc, i)
			s.status = api.SessionActive
			t, herr := h.Handle(rc, fe)
			if herr != nil {
				return step{kind: stepFault, err: herr}, nil
			}
			if t != nil {
				return step{kind: stepFire, transition: t}, nil
			}
			if s.state.IsView() {
				return step{kind: stepRender}, nil
			}
			return done, fe
		}
	}
	return done, fe
}
