package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/petrijr/flowexec/internal/persistence"
	"github.com/petrijr/flowexec/pkg/api"
)

// ExecutionFactory creates executions and rebinds restored ones with the
// same collaborators.
type ExecutionFactory struct {
	Locator   api.FlowDefinitionLocator
	Listeners api.ListenerLoader
	Keys      *KeyFactory
	Options   Options
}

// StateRestorer rebinds a deserialized execution to live definitions.
type StateRestorer interface {
	RestoreState(exec *Execution, attributes map[string]any) error
}

var _ StateRestorer = (*ExecutionFactory)(nil)

// CreateExecution returns a not-yet-started execution of flow.
func (f *ExecutionFactory) CreateExecution(flow *api.Flow) *Execution {
	e := &Execution{
		flowID:     flow.ID,
		attributes: api.NewAttributeMap(),
		status:     api.StatusNotStarted,
	}
	f.bind(e, flow)
	return e
}

func (f *ExecutionFactory) bind(e *Execution, flow *api.Flow) {
	e.flow = flow
	e.locator = f.Locator
	e.keys = f.Keys
	if e.keys == nil {
		e.keys = NewKeyFactory(false)
	}
	e.opts = f.Options
	var ls []api.ExecutionListener
	if f.Listeners != nil {
		ls = f.Listeners.ListenersFor(flow)
	}
	e.bus = newListenerBus(ls)
}

// RestoreState resolves every session's flow and state through the
// locator and reattaches listeners, key factory and options. It fails
// closed with *api.RestoreError when a flow or state no longer exists.
func (f *ExecutionFactory) RestoreState(e *Execution, attributes map[string]any) error {
	if f.Locator == nil {
		return &api.RestoreError{FlowID: e.flowID, Err: api.ErrFlowNotFound}
	}
	root, err := f.Locator.Flow(e.flowID)
	if err != nil {
		return &api.RestoreError{FlowID: e.flowID, Err: flowNotFound(err)}
	}
	for _, s := range e.sessions {
		flow, err := f.Locator.Flow(s.flowID)
		if err != nil {
			return &api.RestoreError{FlowID: s.flowID, StateID: s.stateID, Err: flowNotFound(err)}
		}
		st, ok := flow.State(s.stateID)
		if !ok {
			return &api.RestoreError{FlowID: s.flowID, StateID: s.stateID, Err: api.ErrStateNotFound}
		}
		s.flow = flow
		s.state = st
	}
	if top := e.active(); top != nil && top.status == api.SessionPaused && !top.state.IsView() {
		return &api.RestoreError{FlowID: top.flowID, StateID: top.stateID, Err: fmt.Errorf("%w: paused state is not a view", api.ErrStateNotFound)}
	}
	f.bind(e, root)
	e.attributes.PutAll(attributes)
	return nil
}

func flowNotFound(err error) error {
	if errors.Is(err, api.ErrFlowNotFound) {
		return err
	}
	return fmt.Errorf("%w: %v", api.ErrFlowNotFound, err)
}

// Snapshot captures a paused execution for persistence.
func Snapshot(e *Execution) (*persistence.Snapshot, error) {
	if e.key == nil || e.status != api.StatusActive {
		return nil, api.ErrNotPaused
	}
	snap := &persistence.Snapshot{
		Version:      persistence.SnapshotVersion,
		Key:          *e.key,
		FlowID:       e.flowID,
		Conversation: e.conversationScope().AsMap(),
		Attributes:   e.attributes.AsMap(),
		CreatedAt:    time.Now().UTC(),
	}
	for _, s := range e.sessions {
		rec := persistence.SessionRecord{
			FlowID:     s.flowIdentity(),
			StateID:    s.stateIdentity(),
			Status:     s.status,
			FlowScope:  s.scope.AsMap(),
			FlashScope: s.flash.AsMap(),
		}
		if s.viewScope != nil {
			rec.HasView = true
			rec.ViewScope = s.viewScope.AsMap()
		}
		snap.Sessions = append(snap.Sessions, rec)
	}
	return snap, nil
}

// FromSnapshot rebuilds an unbound execution; RestoreState must run before
// it can be resumed.
func FromSnapshot(snap *persistence.Snapshot) *Execution {
	k := snap.Key
	e := &Execution{
		flowID:       snap.FlowID,
		conversation: api.AttributeMapOf(snap.Conversation),
		attributes:   api.AttributeMapOf(snap.Attributes),
		status:       api.StatusActive,
		key:          &k,
		bus:          newListenerBus(nil),
	}
	var parent *flowSession
	for _, rec := range snap.Sessions {
		s := &flowSession{
			flowID:  rec.FlowID,
			stateID: rec.StateID,
			status:  rec.Status,
			parent:  parent,
			scope:   api.AttributeMapOf(rec.FlowScope),
			flash:   api.AttributeMapOf(rec.FlashScope),
		}
		if rec.HasView {
			s.viewScope = api.AttributeMapOf(rec.ViewScope)
		}
		e.sessions = append(e.sessions, s)
		parent = s
	}
	return e
}
