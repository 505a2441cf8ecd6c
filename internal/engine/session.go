package engine

import "github.com/petrijr/flowexec/pkg/api"

// flowSession is one entry of an execution's session stack.
type flowSession struct {
	flow   *api.Flow
	state  *api.State
	status api.SessionStatus
	parent *flowSession

	scope     *api.AttributeMap
	viewScope *api.AttributeMap
	flash     *api.AttributeMap

	// Set on sessions rebuilt from a snapshot until the restorer binds them.
	flowID  string
	stateID string
}

var _ api.FlowSession = (*flowSession)(nil)

func newFlowSession(flow *api.Flow, parent *flowSession) *flowSession {
	return &flowSession{
		flow:   flow,
		status: api.SessionCreated,
		parent: parent,
		scope:  api.NewAttributeMap(),
		flash:  api.NewAttributeMap(),
		flowID: flow.ID,
	}
}

func (s *flowSession) Definition() *api.Flow         { return s.flow }
func (s *flowSession) State() *api.State             { return s.state }
func (s *flowSession) Status() api.SessionStatus     { return s.status }
func (s *flowSession) Scope() *api.AttributeMap      { return s.scope }
func (s *flowSession) FlashScope() *api.AttributeMap { return s.flash }
func (s *flowSession) IsRoot() bool                  { return s.parent == nil }

func (s *flowSession) ViewScope() (*api.AttributeMap, error) {
	if s.viewScope == nil || !s.state.IsView() {
		return nil, api.ErrViewScopeUnavailable
	}
	return s.viewScope, nil
}

func (s *flowSession) Parent() api.FlowSession {
	if s.parent == nil {
		return nil
	}
	return s.parent
}

// flowIdentity returns the flow id even before the session is bound.
func (s *flowSession) flowIdentity() string {
	if s.flow != nil {
		return s.flow.ID
	}
	return s.flowID
}

func (s *flowSession) stateIdentity() string {
	if s.state != nil {
		return s.state.ID
	}
	return s.stateID
}

func (s *flowSession) setState(st *api.State) {
	s.state = st
	if st != nil {
		s.stateID = st.ID
	}
}
