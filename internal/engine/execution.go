package engine

import (
	"context"
	"log/slog"

	"github.com/petrijr/flowexec/pkg/api"
)

// DefaultMaxSteps bounds the control-loop steps of a single start or
// resume call.
const DefaultMaxSteps = 1000

// Options tune execution behaviour.
type Options struct {
	// MaxSteps limits steps per call; 0 disables the limit.
	MaxSteps int
	// AlwaysRedirectOnPause requests a flow-execution redirect instead of
	// rendering whenever a view is entered outside a refresh.
	AlwaysRedirectOnPause bool
	Logger                *slog.Logger
}

// Execution is the engine's api.FlowExecution: a stack of flow sessions
// sharing one conversation scope.
//
// It is not safe for concurrent use; the executor serializes calls per
// execution through repository leases.
type Execution struct {
	flow   *api.Flow
	flowID string

	sessions     []*flowSession
	conversation *api.AttributeMap
	attributes   *api.AttributeMap

	status    api.ExecutionStatus
	outcome   *api.Outcome
	key       *api.Key
	discarded bool
	// latestSnapshot is the highest snapshot id stored for this execution
	// when it was loaded.
	latestSnapshot int

	locator api.FlowDefinitionLocator
	bus     *listenerBus
	keys    *KeyFactory
	opts    Options
}

var _ api.FlowExecution = (*Execution)(nil)

func (e *Execution) Definition() *api.Flow         { return e.flow }
func (e *Execution) Status() api.ExecutionStatus   { return e.status }
func (e *Execution) IsActive() bool                { return e.status == api.StatusActive }
func (e *Execution) HasStarted() bool              { return e.status != api.StatusNotStarted }
func (e *Execution) HasEnded() bool                { return e.status == api.StatusEnded }
func (e *Execution) Outcome() *api.Outcome         { return e.outcome }
func (e *Execution) Attributes() *api.AttributeMap { return e.attributes }

// FlowID returns the root flow id, available before the execution is bound.
func (e *Execution) FlowID() string { return e.flowID }

// Key returns the repository key, nil unless the execution is paused.
func (e *Execution) Key() *api.Key {
	if e.key == nil {
		return nil
	}
	k := *e.key
	return &k
}

// ConversationScope returns the conversation scope; nil before start.
func (e *Execution) ConversationScope() *api.AttributeMap { return e.conversation }

func (e *Execution) conversationScope() *api.AttributeMap {
	if e.conversation == nil {
		return api.NewAttributeMap()
	}
	return e.conversation
}

// ActiveSession returns the session at the top of the stack.
func (e *Execution) ActiveSession() (api.FlowSession, error) {
	s := e.active()
	if s == nil {
		return nil, api.ErrNoActiveSession
	}
	return s, nil
}

// Depth returns the number of sessions on the stack.
func (e *Execution) Depth() int { return len(e.sessions) }

// ListenerCount returns the number of attached listeners.
func (e *Execution) ListenerCount() int { return e.bus.size() }

func (e *Execution) active() *flowSession {
	if len(e.sessions) == 0 {
		return nil
	}
	return e.sessions[len(e.sessions)-1]
}

func (e *Execution) push(s *flowSession) {
	if top := e.active(); top != nil {
		top.status = api.SessionSuspended
	}
	e.sessions = append(e.sessions, s)
}

func (e *Execution) pop() *flowSession {
	s := e.active()
	if s == nil {
		return nil
	}
	e.sessions = e.sessions[:len(e.sessions)-1]
	if top := e.active(); top != nil {
		top.status = api.SessionActive
	}
	return s
}

func (e *Execution) logger() *slog.Logger {
	if e.opts.Logger != nil {
		return e.opts.Logger
	}
	return slog.Default()
}

// Start launches the root flow. It returns when the execution pauses in a
// View state or ends. Unhandled faults discard the execution.
func (e *Execution) Start(ctx context.Context, input map[string]any, ext api.ExternalContext) error {
	if e.discarded {
		return api.ErrExecutionDiscarded
	}
	if e.status != api.StatusNotStarted {
		return api.ErrAlreadyStarted
	}
	rc := newRequestContext(ctx, ext, e)
	e.status = api.StatusActive
	e.conversation = api.NewAttributeMap()

	e.bus.requestSubmitted(rc)
	defer e.bus.requestProcessed(rc)

	return e.run(rc, step{kind: stepStart, flow: e.flow, input: api.AttributeMapOf(input)})
}

// Resume delivers the external context's event to the paused View state.
// An empty event id re-renders the view.
func (e *Execution) Resume(ctx context.Context, ext api.ExternalContext) error {
	if e.discarded {
		return api.ErrExecutionDiscarded
	}
	s := e.active()
	if e.status != api.StatusActive || s == nil || s.status != api.SessionPaused || !s.state.IsView() {
		return api.ErrNotPaused
	}
	rc := newRequestContext(ctx, ext, e)
	for _, sess := range e.sessions {
		sess.flash.Age()
	}
	defer func() {
		for _, sess := range e.sessions {
			sess.flash.Expire()
		}
	}()

	e.bus.requestSubmitted(rc)
	defer e.bus.requestProcessed(rc)

	s.status = api.SessionActive
	e.bus.resuming(rc)

	eventID := rc.ext.EventID()
	if eventID == "" {
		rc.refresh = true
		return e.run(rc, step{kind: stepRender})
	}
	return e.run(rc, step{kind: stepEvent, event: eventFromExternal(rc.ext)})
}

func eventFromExternal(ext api.ExternalContext) api.Event {
	ev := api.EventOf(ext.EventID())
	if params := ext.Parameters(); len(params) > 0 {
		ev.Attributes = make(map[string]any, len(params))
		for k, v := range params {
			ev.Attributes[k] = v
		}
	}
	return ev
}

// IsDiscarded reports whether an unhandled fault has discarded the
// execution.
func (e *Execution) IsDiscarded() bool { return e.discarded }
