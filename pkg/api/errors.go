package api

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Definition faults, raised while assembling a flow.
	ErrNoStartState     = errors.New("flow has no start state")
	ErrDuplicateState   = errors.New("duplicate state id")
	ErrUnresolvedTarget = errors.New("transition target state not found")
	ErrInvalidState     = errors.New("invalid state definition")

	// Lifecycle faults.
	ErrAlreadyStarted       = errors.New("flow execution already started")
	ErrNotPaused            = errors.New("flow execution is not paused in a view state")
	ErrNoActiveSession      = errors.New("flow execution has no active session")
	ErrExecutionDiscarded   = errors.New("flow execution is unusable after an unhandled fault")
	ErrStepLimitExceeded    = errors.New("flow execution exceeded its step limit")
	ErrViewScopeUnavailable = errors.New("view scope is only available in a view state")

	// Runtime faults raised while handling events.
	ErrTransitionVetoed   = errors.New("transition vetoed by its execution criteria")
	ErrNoTransitionTarget = errors.New("transition has no target state")

	// Mapping faults.
	ErrRequiredMapping = errors.New("required mapping has no source value")
	ErrConversion      = errors.New("mapping value conversion failed")

	// Restoration faults.
	ErrFlowNotFound  = errors.New("flow definition not found")
	ErrStateNotFound = errors.New("state not found")

	// Key and repository faults.
	ErrInvalidKey          = errors.New("invalid flow execution key")
	ErrNoSuchFlowExecution = errors.New("no such flow execution")
	ErrExecutionLocked     = errors.New("flow execution is locked by another request")
)

// DefinitionError reports a malformed flow definition.
type DefinitionError struct {
	FlowID  string
	StateID string
	Err     error
}

func (e *DefinitionError) Error() string {
	if e.StateID == "" {
		return fmt.Sprintf("flow %q: %v", e.FlowID, e.Err)
	}
	return fmt.Sprintf("flow %q state %q: %v", e.FlowID, e.StateID, e.Err)
}

func (e *DefinitionError) Unwrap() error { return e.Err }

// FlowExecutionError is a runtime fault raised while entering or resuming
// a state.
type FlowExecutionError struct {
	FlowID  string
	StateID string
	Err     error
}

func (e *FlowExecutionError) Error() string {
	if e.StateID == "" {
		return fmt.Sprintf("flow execution fault in flow %q: %v", e.FlowID, e.Err)
	}
	return fmt.Sprintf("flow execution fault in flow %q state %q: %v", e.FlowID, e.StateID, e.Err)
}

func (e *FlowExecutionError) Unwrap() error { return e.Err }

// RootCause returns the innermost wrapped error.
func (e *FlowExecutionError) RootCause() error {
	var cause error = e
	for {
		next := errors.Unwrap(cause)
		if next == nil {
			return cause
		}
		cause = next
	}
}

// NoMatchingTransitionError is raised when no transition of a state or its
// flow matches the signalled event.
type NoMatchingTransitionError struct {
	FlowID  string
	StateID string
	EventID string
}

func (e *NoMatchingTransitionError) Error() string {
	return fmt.Sprintf("no transition of state %q in flow %q matches event %q", e.StateID, e.FlowID, e.EventID)
}

// MappingFailure is one failed mapping.
type MappingFailure struct {
	Source string
	Target string
	Err    error
}

// MappingError collects the failures of a mapper run. It is always surfaced
// to the caller and never offered to exception handlers.
type MappingError struct {
	Failures []MappingFailure
}

func (e *MappingError) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, fmt.Sprintf("%s -> %s: %v", f.Source, f.Target, f.Err))
	}
	return "mapping failed: " + strings.Join(msgs, "; ")
}

func (e *MappingError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// RestoreError is raised when a deserialized execution references a flow or
// state that no longer exists.
type RestoreError struct {
	FlowID  string
	StateID string
	Err     error
}

func (e *RestoreError) Error() string {
	return fmt.Sprintf("cannot restore flow execution (flow %q, state %q): %v", e.FlowID, e.StateID, e.Err)
}

func (e *RestoreError) Unwrap() error { return e.Err }

// IsMappingError reports whether err carries a mapping fault.
func IsMappingError(err error) bool {
	var m *MappingError
	return errors.As(err, &m)
}

// IsRestoreError reports whether err carries a restoration fault.
func IsRestoreError(err error) bool {
	var r *RestoreError
	return errors.As(err, &r)
}
