package api

import "fmt"

// FlowVariable is created in flow scope when a session of its flow starts.
type FlowVariable struct {
	Name   string
	Create func(rc RequestContext) (any, error)
}

// Flow is an immutable flow definition once assembled. Definitions are
// shared by every execution and must not be mutated after Assemble.
type Flow struct {
	ID string
	// StartStateID defaults to the first declared state.
	StartStateID string
	States       []*State

	// GlobalTransitions are consulted after the current state's own.
	GlobalTransitions []*Transition
	Attributes        map[string]any

	// Input maps the start input into flow scope.
	Input *Mapper
	// Output maps from the request context into the session output after
	// the End state mapper has run.
	Output *Mapper

	Variables         []FlowVariable
	StartActions      []Action
	EndActions        []Action
	ExceptionHandlers []ExceptionHandler

	index     map[string]*State
	assembled bool
}

// Assemble links states back to the flow, indexes them and validates the
// definition. It is idempotent.
func (f *Flow) Assemble() error {
	if f.assembled {
		return nil
	}
	if f.ID == "" {
		return &DefinitionError{Err: fmt.Errorf("%w: flow id is empty", ErrInvalidState)}
	}
	if len(f.States) == 0 {
		return &DefinitionError{FlowID: f.ID, Err: ErrNoStartState}
	}

	index := make(map[string]*State, len(f.States))
	for _, s := range f.States {
		if s == nil || s.ID == "" {
			return &DefinitionError{FlowID: f.ID, Err: fmt.Errorf("%w: state without id", ErrInvalidState)}
		}
		if _, dup := index[s.ID]; dup {
			return &DefinitionError{FlowID: f.ID, StateID: s.ID, Err: ErrDuplicateState}
		}
		if err := s.validate(); err != nil {
			return &DefinitionError{FlowID: f.ID, StateID: s.ID, Err: err}
		}
		s.Flow = f
		index[s.ID] = s
	}

	if f.StartStateID == "" {
		f.StartStateID = f.States[0].ID
	}
	if _, ok := index[f.StartStateID]; !ok {
		return &DefinitionError{FlowID: f.ID, StateID: f.StartStateID, Err: ErrNoStartState}
	}

	check := func(from string, ts []*Transition) error {
		for _, t := range ts {
			if t == nil {
				return &DefinitionError{FlowID: f.ID, StateID: from, Err: fmt.Errorf("%w: nil transition", ErrInvalidState)}
			}
			if st, ok := t.Target.(StaticTarget); ok {
				if _, found := index[string(st)]; !found {
					return &DefinitionError{FlowID: f.ID, StateID: from, Err: fmt.Errorf("%w: %q", ErrUnresolvedTarget, string(st))}
				}
			}
		}
		return nil
	}
	for _, s := range f.States {
		if err := check(s.ID, s.Transitions); err != nil {
			return err
		}
	}
	if err := check("", f.GlobalTransitions); err != nil {
		return err
	}

	f.index = index
	f.assembled = true
	return nil
}

// State returns the state with the given id.
func (f *Flow) State(id string) (*State, bool) {
	if f.index == nil {
		for _, s := range f.States {
			if s.ID == id {
				return s, true
			}
		}
		return nil, false
	}
	s, ok := f.index[id]
	return s, ok
}

// StartState returns the start state. The flow must be assembled.
func (f *Flow) StartState() *State {
	s, _ := f.State(f.StartStateID)
	return s
}

// StateIDs returns the state ids in declaration order.
func (f *Flow) StateIDs() []string {
	ids := make([]string, 0, len(f.States))
	for _, s := range f.States {
		ids = append(ids, s.ID)
	}
	return ids
}

func (f *Flow) String() string {
	return fmt.Sprintf("flow %q (%d states)", f.ID, len(f.States))
}

// FlowDefinitionLocator resolves flow ids to assembled definitions.
type FlowDefinitionLocator interface {
	Flow(id string) (*Flow, error)
}
