package flowexec

import (
	"fmt"

	"github.com/petrijr/flowexec/pkg/api"
)

// FlowBuilder provides a fluent API for defining flows. State methods
// append a state and make it current; transition and payload methods
// apply to the current state:
//
//	flow := flowexec.New("person.Search").
//	    Action("getPersonList", findPeople).On(api.EventSuccess, "viewPersonList").
//	    View("viewPersonList", listView).On("select", "detail").On("finish", "finish").
//	    Subflow("detail", "person.Detail").OnAny("getPersonList").
//	    End("finish")
//
//	if err := flow.Register(executor); err != nil {
//	    log.Fatal(err)
//	}
//
//	res, err := executor.LaunchExecution(ctx, flow.ID(), nil, nil)
type FlowBuilder struct {
	flow *api.Flow
	cur  *api.State
}

// New creates a new flow builder with the given id.
func New(id string) *FlowBuilder {
	if id == "" {
		panic("flowexec: flow id must not be empty")
	}
	return &FlowBuilder{flow: &api.Flow{ID: id}}
}

// ID returns the flow id.
func (b *FlowBuilder) ID() string {
	return b.flow.ID
}

// Definition returns the flow being built without assembling it.
func (b *FlowBuilder) Definition() *api.Flow {
	return b.flow
}

func (b *FlowBuilder) add(st *api.State) *FlowBuilder {
	if st.ID == "" {
		panic(fmt.Sprintf("flowexec: flow %q: state id must not be empty", b.flow.ID))
	}
	b.flow.States = append(b.flow.States, st)
	b.cur = st
	return b
}

func (b *FlowBuilder) current(method string) *api.State {
	if b.cur == nil {
		panic(fmt.Sprintf("flowexec: flow %q: %s called before any state", b.flow.ID, method))
	}
	return b.cur
}

// Action appends an Action state running actions in order.
func (b *FlowBuilder) Action(id string, actions ...api.Action) *FlowBuilder {
	return b.add(&api.State{ID: id, Kind: api.KindAction, Actions: actions})
}

// View appends a View state rendering the view produced by factory.
func (b *FlowBuilder) View(id string, factory api.ViewFactory) *FlowBuilder {
	return b.add(&api.State{ID: id, Kind: api.KindView, View: &api.ViewSpec{Factory: factory}})
}

// Decision appends a Decision state; add branches with When and Otherwise.
func (b *FlowBuilder) Decision(id string) *FlowBuilder {
	return b.add(&api.State{ID: id, Kind: api.KindDecision})
}

// Subflow appends a Subflow state spawning flowID.
func (b *FlowBuilder) Subflow(id, flowID string) *FlowBuilder {
	return b.add(&api.State{ID: id, Kind: api.KindSubflow, Subflow: &api.SubflowSpec{FlowID: flowID}})
}

// End appends an End state.
func (b *FlowBuilder) End(id string) *FlowBuilder {
	return b.add(&api.State{ID: id, Kind: api.KindEnd, End: &api.EndSpec{}})
}

// StartAt overrides the start state, which defaults to the first state.
func (b *FlowBuilder) StartAt(id string) *FlowBuilder {
	b.flow.StartStateID = id
	return b
}

func (b *FlowBuilder) transition(t *api.Transition) *FlowBuilder {
	st := b.current("transition")
	st.Transitions = append(st.Transitions, t)
	return b
}

// On adds a transition on eventID to target. Actions are execution
// criteria able to veto the transition.
func (b *FlowBuilder) On(eventID, target string, actions ...api.Action) *FlowBuilder {
	return b.transition(&api.Transition{Criteria: api.On(eventID), Target: api.To(target), Actions: actions})
}

// OnAny adds a transition matching every event.
func (b *FlowBuilder) OnAny(target string, actions ...api.Action) *FlowBuilder {
	return b.transition(&api.Transition{Criteria: api.Any(), Target: api.To(target), Actions: actions})
}

// Stay adds a target-less transition on eventID: the View state stays
// current and re-renders after actions run.
func (b *FlowBuilder) Stay(eventID string, actions ...api.Action) *FlowBuilder {
	return b.transition(&api.Transition{Criteria: api.On(eventID), Actions: actions})
}

// When adds a transition taken when expr evaluates to true.
func (b *FlowBuilder) When(expr api.Expression, target string) *FlowBuilder {
	return b.transition(&api.Transition{Criteria: api.If(expr), Target: api.To(target)})
}

// Otherwise adds an unconditional transition, the else branch of a
// Decision state.
func (b *FlowBuilder) Otherwise(target string) *FlowBuilder {
	return b.transition(&api.Transition{Target: api.To(target)})
}

// GlobalOn adds a flow-wide transition consulted after the state's own.
func (b *FlowBuilder) GlobalOn(eventID, target string) *FlowBuilder {
	b.flow.GlobalTransitions = append(b.flow.GlobalTransitions,
		&api.Transition{Criteria: api.On(eventID), Target: api.To(target)})
	return b
}

// Entry adds entry actions to the current state.
func (b *FlowBuilder) Entry(actions ...api.Action) *FlowBuilder {
	st := b.current("Entry")
	st.EntryActions = append(st.EntryActions, actions...)
	return b
}

// Exit adds exit actions to the current state.
func (b *FlowBuilder) Exit(actions ...api.Action) *FlowBuilder {
	st := b.current("Exit")
	st.ExitActions = append(st.ExitActions, actions...)
	return b
}

// Attribute sets a state attribute on the current state.
func (b *FlowBuilder) Attribute(name string, value any) *FlowBuilder {
	st := b.current("Attribute")
	if st.Attributes == nil {
		st.Attributes = make(map[string]any)
	}
	st.Attributes[name] = value
	return b
}

// OnException installs a handler on the current state transitioning to
// target for faults matched by matchers; no matchers match every fault.
func (b *FlowBuilder) OnException(target string, matchers ...api.ErrorMatcher) *FlowBuilder {
	st := b.current("OnException")
	st.ExceptionHandlers = append(st.ExceptionHandlers, api.NewTransitionExecutingHandler(api.To(target), matchers...))
	return b
}

// GlobalOnException installs a flow-level exception handler.
func (b *FlowBuilder) GlobalOnException(target string, matchers ...api.ErrorMatcher) *FlowBuilder {
	b.flow.ExceptionHandlers = append(b.flow.ExceptionHandlers, api.NewTransitionExecutingHandler(api.To(target), matchers...))
	return b
}

// Handler installs a custom flow-level exception handler.
func (b *FlowBuilder) Handler(h api.ExceptionHandler) *FlowBuilder {
	b.flow.ExceptionHandlers = append(b.flow.ExceptionHandlers, h)
	return b
}

// Redirect makes the current View state request a flow-execution redirect
// before rendering. popup hints the caller to open the target in a popup.
func (b *FlowBuilder) Redirect(popup bool) *FlowBuilder {
	st := b.current("Redirect")
	if st.View == nil {
		panic(fmt.Sprintf("flowexec: state %q is not a view", st.ID))
	}
	st.View.Redirect = true
	st.View.Popup = popup
	return b
}

// Render adds render actions to the current View state.
func (b *FlowBuilder) Render(actions ...api.Action) *FlowBuilder {
	st := b.current("Render")
	if st.View == nil {
		panic(fmt.Sprintf("flowexec: state %q is not a view", st.ID))
	}
	st.View.RenderActions = append(st.View.RenderActions, actions...)
	return b
}

// SubflowInput adds mappings from the parent request context into the
// child input of the current Subflow state.
func (b *FlowBuilder) SubflowInput(mappings ...api.Mapping) *FlowBuilder {
	sf := b.subflow("SubflowInput")
	sf.Input = appendMappings(sf.Input, mappings)
	return b
}

// SubflowOutput adds mappings from the child output into the parent flow
// scope.
func (b *FlowBuilder) SubflowOutput(mappings ...api.Mapping) *FlowBuilder {
	sf := b.subflow("SubflowOutput")
	sf.Output = appendMappings(sf.Output, mappings)
	return b
}

func (b *FlowBuilder) subflow(method string) *api.SubflowSpec {
	st := b.current(method)
	if st.Subflow == nil {
		panic(fmt.Sprintf("flowexec: %s: state %q is not a subflow", method, st.ID))
	}
	return st.Subflow
}

func (b *FlowBuilder) end(method string) *api.EndSpec {
	st := b.current(method)
	if st.End == nil {
		panic(fmt.Sprintf("flowexec: %s: state %q is not an end state", method, st.ID))
	}
	return st.End
}

// EndOutput adds output mappings to the current End state.
func (b *FlowBuilder) EndOutput(mappings ...api.Mapping) *FlowBuilder {
	e := b.end("EndOutput")
	e.Output = appendMappings(e.Output, mappings)
	return b
}

// Commit marks the current End state as committing or rolling back.
func (b *FlowBuilder) Commit(commit bool) *FlowBuilder {
	b.end("Commit").Commit = &commit
	return b
}

// FinalView sets the view rendered when the root session ends here.
func (b *FlowBuilder) FinalView(factory api.ViewFactory) *FlowBuilder {
	b.end("FinalView").FinalView = factory
	return b
}

// Input adds flow input mappings.
func (b *FlowBuilder) Input(mappings ...api.Mapping) *FlowBuilder {
	b.flow.Input = appendMappings(b.flow.Input, mappings)
	return b
}

// Output adds flow output mappings, applied after the End state's own.
func (b *FlowBuilder) Output(mappings ...api.Mapping) *FlowBuilder {
	b.flow.Output = appendMappings(b.flow.Output, mappings)
	return b
}

// Var declares a flow variable created on session start.
func (b *FlowBuilder) Var(name string, create func(rc api.RequestContext) (any, error)) *FlowBuilder {
	b.flow.Variables = append(b.flow.Variables, api.FlowVariable{Name: name, Create: create})
	return b
}

// OnStart adds flow start actions.
func (b *FlowBuilder) OnStart(actions ...api.Action) *FlowBuilder {
	b.flow.StartActions = append(b.flow.StartActions, actions...)
	return b
}

// OnEnd adds flow end actions.
func (b *FlowBuilder) OnEnd(actions ...api.Action) *FlowBuilder {
	b.flow.EndActions = append(b.flow.EndActions, actions...)
	return b
}

func appendMappings(mp *api.Mapper, mappings []api.Mapping) *api.Mapper {
	if mp == nil {
		mp = api.NewMapper()
	}
	for _, m := range mappings {
		mp.Add(m)
	}
	return mp
}

// Build assembles and validates the flow.
func (b *FlowBuilder) Build() (*api.Flow, error) {
	if err := b.flow.Assemble(); err != nil {
		return nil, err
	}
	return b.flow, nil
}

// MustBuild is like Build but panics on error.
func (b *FlowBuilder) MustBuild() *api.Flow {
	f, err := b.Build()
	if err != nil {
		panic(err)
	}
	return f
}

// Register registers the built flow with the given executor.
func (b *FlowBuilder) Register(x Executor) error {
	return x.RegisterFlow(b.flow)
}

// MustRegister is like Register but panics on error.
// Useful for initialization in main().
func (b *FlowBuilder) MustRegister(x Executor) {
	if err := b.Register(x); err != nil {
		panic(err)
	}
}
