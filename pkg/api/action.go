package api

// Standard event ids returned by actions.
const (
	EventSuccess = "success"
	EventError   = "error"
	EventYes     = "yes"
	EventNo      = "no"
)

// Event is an outcome signalled to the current state, either by an action,
// by an ended subflow, or by the external context on resume.
type Event struct {
	ID         string
	Attributes map[string]any
}

// EventOf returns an event with the given id.
func EventOf(id string) Event {
	return Event{ID: id}
}

// Success returns the "success" event.
func Success() Event { return Event{ID: EventSuccess} }

// Failure returns the "error" event.
func Failure() Event { return Event{ID: EventError} }

// Yes returns the "yes" event.
func Yes() Event { return Event{ID: EventYes} }

// No returns the "no" event.
func No() Event { return Event{ID: EventNo} }

// ResultEvent maps a boolean onto Yes/No.
func ResultEvent(ok bool) Event {
	if ok {
		return Yes()
	}
	return No()
}

// IsZero reports whether the event carries no id.
func (e Event) IsZero() bool {
	return e.ID == ""
}

// allowsTransition reports whether an action result lets a guarded
// transition proceed. An empty result counts as success.
func (e Event) allowsTransition() bool {
	switch e.ID {
	case "", EventSuccess, EventYes, "true":
		return true
	default:
		return false
	}
}

// Action is a unit of user code invoked by the engine. The returned event
// drives Action states; in other positions only the error matters.
type Action interface {
	Execute(rc RequestContext) (Event, error)
}

// ActionFunc adapts a function to Action.
type ActionFunc func(rc RequestContext) (Event, error)

// Execute implements Action.
func (f ActionFunc) Execute(rc RequestContext) (Event, error) {
	return f(rc)
}

// SetAction returns an action that stores an evaluated expression into a
// scope and signals success.
func SetAction(scope ScopeType, name string, value Expression) Action {
	return ActionFunc(func(rc RequestContext) (Event, error) {
		v, err := value.Evaluate(rc)
		if err != nil {
			return Event{}, err
		}
		target, err := rc.Scope(scope)
		if err != nil {
			return Event{}, err
		}
		target.Put(name, v)
		return Success(), nil
	})
}

// RunActions executes actions in order and stops at the first error.
func RunActions(rc RequestContext, actions []Action) error {
	for _, a := range actions {
		if _, err := a.Execute(rc); err != nil {
			return err
		}
	}
	return nil
}
