package api

// StateKind selects the behaviour of a state when it is entered.
type StateKind string

const (
	// KindAction runs actions and routes on their results.
	KindAction StateKind = "ACTION"
	// KindView renders a view and pauses the execution.
	KindView StateKind = "VIEW"
	// KindDecision routes on the current event or on expressions.
	KindDecision StateKind = "DECISION"
	// KindSubflow spawns a child flow session.
	KindSubflow StateKind = "SUBFLOW"
	// KindEnd terminates the active session.
	KindEnd StateKind = "END"
)

// ViewSpec is the payload of a View state.
type ViewSpec struct {
	// Factory creates the view rendered on entry and on refresh. A nil
	// factory renders nothing.
	Factory ViewFactory
	// Redirect asks the caller to redirect to the paused execution instead
	// of rendering in the entering request.
	Redirect bool
	// Popup hints that the redirect target should open in a popup.
	Popup bool
	// RenderActions run before every render.
	RenderActions []Action
}

// SubflowSpec is the payload of a Subflow state.
type SubflowSpec struct {
	// FlowID names the child flow, resolved through the locator when the
	// state is entered.
	FlowID string
	// Input maps from the parent request context into the child input.
	Input *Mapper
	// Output maps from the child outcome output into the parent flow scope.
	Output *Mapper
}

// EndSpec is the payload of an End state.
type EndSpec struct {
	// Output maps from the request context into the session output.
	Output *Mapper
	// Commit is exposed to listeners through State.Attributes["commit"].
	Commit *bool
	// FinalView is rendered when the root session ends here.
	FinalView ViewFactory
}

// State is one node of a flow. Kind selects which payload is meaningful.
type State struct {
	ID   string
	Kind StateKind

	// Flow is the owning flow, set by Flow.Assemble.
	Flow *Flow

	// Actions are the actions of an Action state.
	Actions []Action

	EntryActions      []Action
	ExitActions       []Action
	ExceptionHandlers []ExceptionHandler
	Transitions       []*Transition
	Attributes        map[string]any

	View    *ViewSpec
	Subflow *SubflowSpec
	End     *EndSpec
}

// IsView reports whether the state pauses the execution.
func (s *State) IsView() bool {
	return s != nil && s.Kind == KindView
}

// IsEnd reports whether the state terminates its session.
func (s *State) IsEnd() bool {
	return s != nil && s.Kind == KindEnd
}

// QualifiedID returns "flow:state".
func (s *State) QualifiedID() string {
	if s.Flow == nil {
		return s.ID
	}
	return s.Flow.ID + ":" + s.ID
}

func (s *State) String() string {
	return string(s.Kind) + " " + s.QualifiedID()
}

func (s *State) validate() error {
	switch s.Kind {
	case KindAction:
		if len(s.Actions) == 0 {
			return ErrInvalidState
		}
	case KindView:
		if s.View == nil {
			s.View = &ViewSpec{}
		}
	case KindDecision:
		if len(s.Transitions) == 0 {
			return ErrInvalidState
		}
	case KindSubflow:
		if s.Subflow == nil || s.Subflow.FlowID == "" {
			return ErrInvalidState
		}
	case KindEnd:
		if s.End == nil {
			s.End = &EndSpec{}
		}
		if s.End.Commit != nil {
			if s.Attributes == nil {
				s.Attributes = make(map[string]any)
			}
			s.Attributes["commit"] = *s.End.Commit
		}
	default:
		return ErrInvalidState
	}
	return nil
}
