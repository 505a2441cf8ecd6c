package api

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// ExecutionStatus is the lifecycle of a flow execution.
type ExecutionStatus string

const (
	StatusNotStarted ExecutionStatus = "NOT_STARTED"
	StatusActive     ExecutionStatus = "ACTIVE"
	StatusEnded      ExecutionStatus = "ENDED"
)

// SessionStatus is the lifecycle of one flow session on the stack.
type SessionStatus string

const (
	SessionCreated   SessionStatus = "CREATED"
	SessionStarting  SessionStatus = "STARTING"
	SessionActive    SessionStatus = "ACTIVE"
	SessionPaused    SessionStatus = "PAUSED"
	SessionSuspended SessionStatus = "SUSPENDED"
	SessionEnding    SessionStatus = "ENDING"
	SessionEnded     SessionStatus = "ENDED"
)

// FlowSession is one running flow on an execution's stack.
type FlowSession interface {
	Definition() *Flow
	// State returns the current state, nil before the start state is
	// entered.
	State() *State
	Status() SessionStatus
	// Scope returns the flow scope.
	Scope() *AttributeMap
	// ViewScope fails with ErrViewScopeUnavailable outside a View state.
	ViewScope() (*AttributeMap, error)
	FlashScope() *AttributeMap
	// Parent returns nil for the root session.
	Parent() FlowSession
	IsRoot() bool
}

// FlowExecutionContext is the read-only view of an execution handed to
// user code.
type FlowExecutionContext interface {
	Definition() *Flow
	Status() ExecutionStatus
	IsActive() bool
	HasStarted() bool
	HasEnded() bool
	// Outcome is set once the root session has ended.
	Outcome() *Outcome
	// Key is non-nil only while the execution is paused.
	Key() *Key
	ActiveSession() (FlowSession, error)
	ConversationScope() *AttributeMap
	Attributes() *AttributeMap
}

// FlowExecution drives one conversation through a flow.
type FlowExecution interface {
	FlowExecutionContext

	// Start launches the root flow with input. It returns once the
	// execution pauses in a View state or ends.
	Start(ctx context.Context, input map[string]any, ext ExternalContext) error
	// Resume delivers ext's event to the paused View state.
	Resume(ctx context.Context, ext ExternalContext) error
}

// Outcome is the result of an ended session.
type Outcome struct {
	ID     string
	Output map[string]any
}

// Key identifies a paused execution in a repository. ExecutionID is stable
// for the whole conversation; SnapshotID advances when a new key is
// generated per pause.
type Key struct {
	ExecutionID string
	SnapshotID  int
}

// String renders the key as "e<execution>s<snapshot>".
func (k Key) String() string {
	return "e" + k.ExecutionID + "s" + strconv.Itoa(k.SnapshotID)
}

// Next returns a key for the next snapshot of the same execution.
func (k Key) Next() Key {
	return Key{ExecutionID: k.ExecutionID, SnapshotID: k.SnapshotID + 1}
}

// ParseKey parses a key rendered by Key.String.
func ParseKey(s string) (Key, error) {
	if !strings.HasPrefix(s, "e") {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	i := strings.LastIndex(s, "s")
	if i <= 1 || i == len(s)-1 {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	n, err := strconv.Atoi(s[i+1:])
	if err != nil || n < 0 {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	return Key{ExecutionID: s[1:i], SnapshotID: n}, nil
}

// ResultStatus tells the caller what to do after launch or resume.
type ResultStatus string

const (
	ResultPaused ResultStatus = "PAUSED"
	ResultEnded  ResultStatus = "ENDED"
)

// Result is returned by Executor calls.
type Result struct {
	Status ResultStatus
	FlowID string
	// Key is the repository key of a paused execution.
	Key string
	// Outcome is set when the execution ended.
	Outcome *Outcome
	// Redirect is the redirect requested on the external context, if any.
	Redirect Redirect
}

// IsPaused reports whether the execution is waiting for the next request.
func (r *Result) IsPaused() bool { return r != nil && r.Status == ResultPaused }

// IsEnded reports whether the execution has finished.
func (r *Result) IsEnded() bool { return r != nil && r.Status == ResultEnded }

// Executor is the request-level entry point: it locates flows, drives
// executions and persists paused ones between requests.
type Executor interface {
	// RegisterFlow assembles f and makes it available by id.
	RegisterFlow(f *Flow) error

	// LaunchExecution starts a new execution of flowID.
	LaunchExecution(ctx context.Context, flowID string, input map[string]any, ext ExternalContext) (*Result, error)

	// ResumeExecution restores the execution stored under key and delivers
	// the external context's event to it.
	ResumeExecution(ctx context.Context, key string, ext ExternalContext) (*Result, error)
}
