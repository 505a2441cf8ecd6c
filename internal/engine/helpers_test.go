package engine

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/flowexec/pkg/api"
)

func flow(id string, states ...*api.State) *api.Flow {
	return &api.Flow{ID: id, States: states}
}

func actionState(id string, a api.Action, ts ...*api.Transition) *api.State {
	return &api.State{ID: id, Kind: api.KindAction, Actions: []api.Action{a}, Transitions: ts}
}

// viewState renders "[id]" to the external writer.
func viewState(id string, ts ...*api.Transition) *api.State {
	return &api.State{
		ID:          id,
		Kind:        api.KindView,
		View:        &api.ViewSpec{Factory: textView("[" + id + "]")},
		Transitions: ts,
	}
}

func subflowState(id, flowID string, ts ...*api.Transition) *api.State {
	return &api.State{ID: id, Kind: api.KindSubflow, Subflow: &api.SubflowSpec{FlowID: flowID}, Transitions: ts}
}

func endState(id string, output ...api.Mapping) *api.State {
	return &api.State{ID: id, Kind: api.KindEnd, End: &api.EndSpec{Output: api.NewMapper(output...)}}
}

func on(eventID, target string, actions ...api.Action) *api.Transition {
	return &api.Transition{Criteria: api.On(eventID), Target: api.To(target), Actions: actions}
}

func stay(eventID string, actions ...api.Action) *api.Transition {
	return &api.Transition{Criteria: api.On(eventID), Actions: actions}
}

func signal(eventID string) api.Action {
	return api.ActionFunc(func(api.RequestContext) (api.Event, error) { return api.EventOf(eventID), nil })
}

func fail(err error) api.Action {
	return api.ActionFunc(func(api.RequestContext) (api.Event, error) { return api.Event{}, err })
}

func textView(s string) api.ViewFactory {
	return api.StaticView(api.ViewFunc(func(rc api.RequestContext) error {
		_, err := fmt.Fprint(rc.External().Writer(), s)
		return err
	}))
}

func newRegistry(t *testing.T, flows ...*api.Flow) *FlowRegistry {
	t.Helper()
	reg := NewFlowRegistry()
	for _, f := range flows {
		require.NoError(t, reg.Register(f))
	}
	return reg
}

func newFactory(reg *FlowRegistry, listeners ...api.ExecutionListener) *ExecutionFactory {
	return &ExecutionFactory{
		Locator:   reg,
		Listeners: api.NewStaticListenerLoader(listeners...),
		Keys:      NewKeyFactory(false),
		Options:   Options{MaxSteps: DefaultMaxSteps},
	}
}

func newExecution(t *testing.T, reg *FlowRegistry, flowID string, listeners ...api.ExecutionListener) *Execution {
	t.Helper()
	f, err := reg.Flow(flowID)
	require.NoError(t, err)
	return newFactory(reg, listeners...).CreateExecution(f)
}

func event(id string) *api.LocalExternalContext {
	return api.NewLocalExternalContext(id, nil)
}

func currentStateID(t *testing.T, exec *Execution) string {
	t.Helper()
	s, err := exec.ActiveSession()
	require.NoError(t, err)
	return s.State().ID
}

// recorder records hook invocations as "hook:flow:detail".
type recorder struct {
	events []string
}

func (r *recorder) add(parts ...string) {
	r.events = append(r.events, strings.Join(parts, ":"))
}

func (r *recorder) has(e string) bool {
	for _, x := range r.events {
		if x == e {
			return true
		}
	}
	return false
}

func (r *recorder) SessionCreating(_ api.RequestContext, f *api.Flow) {
	r.add("sessionCreating", f.ID)
}

func (r *recorder) SessionStarting(_ api.RequestContext, s api.FlowSession, _ *api.AttributeMap) {
	r.add("sessionStarting", s.Definition().ID)
}

func (r *recorder) SessionStarted(_ api.RequestContext, s api.FlowSession) {
	r.add("sessionStarted", s.Definition().ID)
}

func (r *recorder) StateEntering(_ api.RequestContext, st *api.State) error {
	r.add("stateEntering", st.Flow.ID, st.ID)
	return nil
}

func (r *recorder) StateEntered(_ api.RequestContext, _, st *api.State) {
	r.add("stateEntered", st.Flow.ID, st.ID)
}

func (r *recorder) TransitionExecuting(rc api.RequestContext, _ *api.Transition) {
	r.add("transitionExecuting", rc.CurrentEvent().ID)
}

func (r *recorder) Paused(rc api.RequestContext) {
	r.add("paused", rc.CurrentState().ID)
}

func (r *recorder) Resuming(rc api.RequestContext) {
	r.add("resuming", rc.External().EventID())
}

func (r *recorder) SessionEnding(_ api.RequestContext, s api.FlowSession, outcome string, _ *api.AttributeMap) {
	r.add("sessionEnding", s.Definition().ID, outcome)
}

func (r *recorder) SessionEnded(_ api.RequestContext, s api.FlowSession, outcome string, _ *api.AttributeMap) {
	r.add("sessionEnded", s.Definition().ID, outcome)
}

func (r *recorder) ExceptionThrown(_ api.RequestContext, err *api.FlowExecutionError) {
	r.add("exceptionThrown", err.FlowID, err.StateID)
}
