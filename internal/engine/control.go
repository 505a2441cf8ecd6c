package engine

import (
	"fmt"
	"log/slog"

	"github.com/petrijr/flowexec/pkg/api"
)

type stepKind int

const (
	stepDone stepKind = iota
	// stepStart starts a session of flow with input.
	stepStart
	// stepEnter enters state in the active session.
	stepEnter
	// stepEvent signals event to the current state.
	stepEvent
	// stepFire executes transition out of the current state.
	stepFire
	// stepRender renders the current view and pauses.
	stepRender
	// stepFault raises err, used to offer handler faults to the chain.
	stepFault
)

type step struct {
	kind       stepKind
	flow       *api.Flow
	input      *api.AttributeMap
	state      *api.State
	event      api.Event
	transition *api.Transition
	err        error
}

var done = step{kind: stepDone}

// run drives the control loop until the execution pauses, ends or fails.
// The loop is iterative so arbitrarily long chains of states never grow
// the goroutine stack.
func (e *Execution) run(rc *requestContext, next step) error {
	for next.kind != stepDone {
		if err := rc.tick(e.opts.MaxSteps); err != nil {
			return e.fail(rc, err)
		}
		n, err := e.perform(rc, next)
		if err != nil {
			n, err = e.handleFault(rc, err)
			if err != nil {
				return e.fail(rc, err)
			}
		}
		next = n
	}
	return nil
}

func (e *Execution) fail(rc *requestContext, err error) error {
	e.discarded = true
	e.key = nil
	e.logger().DebugContext(rc.ctx, "execution_discarded",
		slog.String("flow", e.flowID),
		slog.Any("error", err),
	)
	return err
}

func (e *Execution) perform(rc *requestContext, s step) (step, error) {
	switch s.kind {
	case stepStart:
		return e.startSession(rc, s.flow, s.input)
	case stepEnter:
		return e.enterState(rc, s.state)
	case stepEvent:
		return e.handleEvent(rc, s.event)
	case stepFire:
		return e.executeTransition(rc, s.transition)
	case stepRender:
		return e.renderAndPause(rc)
	case stepFault:
		return done, s.err
	}
	return done, fmt.Errorf("unknown step kind %d", s.kind)
}

func (e *Execution) startSession(rc *requestContext, flow *api.Flow, input *api.AttributeMap) (step, error) {
	e.bus.sessionCreating(rc, flow)
	s := newFlowSession(flow, e.active())
	e.push(s)
	s.status = api.SessionStarting
	e.bus.sessionStarting(rc, s, input)

	for _, v := range flow.Variables {
		val, err := v.Create(rc)
		if err != nil {
			return done, fmt.Errorf("create flow variable %q: %w", v.Name, err)
		}
		s.scope.Put(v.Name, val)
	}
	if err := api.RunActions(rc, flow.StartActions); err != nil {
		return done, err
	}
	if flow.Input != nil {
		if err := flow.Input.Apply(input, s.scope); err != nil {
			return done, err
		}
	} else {
		s.scope.PutAll(input.AsMap())
	}

	s.status = api.SessionActive
	e.bus.sessionStarted(rc, s)
	return step{kind: stepEnter, state: flow.StartState()}, nil
}

func (e *Execution) enterState(rc *requestContext, st *api.State) (step, error) {
	s := e.active()
	if err := e.bus.stateEntering(rc, st); err != nil {
		return done, err
	}
	prev := s.state
	s.setState(st)
	if err := api.RunActions(rc, st.EntryActions); err != nil {
		return done, err
	}
	e.bus.stateEntered(rc, prev, st)

	switch st.Kind {
	case api.KindAction:
		return e.enterAction(rc, st)
	case api.KindDecision:
		return e.matchTransition(rc, st)
	case api.KindView:
		s.viewScope = api.NewAttributeMap()
		return e.renderAndPause(rc)
	case api.KindSubflow:
		return e.enterSubflow(rc, st)
	case api.KindEnd:
		return e.enterEnd(rc, st)
	}
	return done, api.ErrInvalidState
}

// enterAction executes the state's actions in order; the first result
// event with a matching transition wins.
func (e *Execution) enterAction(rc *requestContext, st *api.State) (step, error) {
	last := ""
	for _, a := range st.Actions {
		ev, err := a.Execute(rc)
		if err != nil {
			return done, err
		}
		if ev.IsZero() {
			continue
		}
		last = ev.ID
		e.signal(rc, ev)
		t, err := api.MatchTransition(rc, st.Transitions, st.Flow.GlobalTransitions)
		if err != nil {
			return done, err
		}
		if t != nil {
			return step{kind: stepFire, transition: t}, nil
		}
	}
	return done, &api.NoMatchingTransitionError{FlowID: st.Flow.ID, StateID: st.ID, EventID: last}
}

func (e *Execution) signal(rc *requestContext, ev api.Event) {
	rc.event = ev
	e.bus.eventSignaled(rc, ev)
}

func (e *Execution) handleEvent(rc *requestContext, ev api.Event) (step, error) {
	e.signal(rc, ev)
	s := e.active()
	if s == nil || s.state == nil {
		return done, api.ErrNoActiveSession
	}
	return e.matchTransition(rc, s.state)
}

func (e *Execution) matchTransition(rc *requestContext, st *api.State) (step, error) {
	t, err := api.MatchTransition(rc, st.Transitions, st.Flow.GlobalTransitions)
	if err != nil {
		return done, err
	}
	if t == nil {
		return done, &api.NoMatchingTransitionError{FlowID: st.Flow.ID, StateID: st.ID, EventID: rc.event.ID}
	}
	return step{kind: stepFire, transition: t}, nil
}

func (e *Execution) executeTransition(rc *requestContext, t *api.Transition) (step, error) {
	s := e.active()
	src := s.state
	rc.transition = t
	e.bus.transitionExecuting(rc, t)

	ok, err := t.CanExecute(rc)
	if err != nil {
		return done, err
	}
	if !ok {
		if src.IsView() {
			return step{kind: stepRender}, nil
		}
		return done, api.ErrTransitionVetoed
	}
	if t.Target == nil {
		if src.IsView() {
			return step{kind: stepRender}, nil
		}
		return done, api.ErrNoTransitionTarget
	}

	targetID, err := t.Target.Resolve(rc)
	if err != nil {
		return done, err
	}
	target, found := s.flow.State(targetID)
	if !found {
		return done, fmt.Errorf("%w: %q", api.ErrUnresolvedTarget, targetID)
	}

	if src != nil {
		if err := api.RunActions(rc, src.ExitActions); err != nil {
			return done, err
		}
		if src.IsView() {
			s.viewScope = nil
		}
	}
	return step{kind: stepEnter, state: target}, nil
}

// renderAndPause renders the current view, or requests a redirect so the
// view renders on the following refresh, then pauses.
func (e *Execution) renderAndPause(rc *requestContext) (step, error) {
	s := e.active()
	st := s.state
	if !st.IsView() {
		return done, api.ErrNotPaused
	}
	if s.viewScope == nil {
		s.viewScope = api.NewAttributeMap()
	}
	if !rc.refresh && (st.View.Redirect || e.opts.AlwaysRedirectOnPause) {
		rc.ext.RequestRedirect(api.Redirect{Kind: api.RedirectFlowExecution, Popup: st.View.Popup})
	} else if err := e.render(rc, st, st.View.RenderActions, st.View.Factory); err != nil {
		return done, err
	}
	e.pause(rc)
	return done, nil
}

func (e *Execution) render(rc *requestContext, st *api.State, actions []api.Action, factory api.ViewFactory) error {
	if err := api.RunActions(rc, actions); err != nil {
		return err
	}
	e.bus.viewRendering(rc, st)
	if factory != nil {
		v, err := factory.View(rc)
		if err != nil {
			return err
		}
		if v != nil {
			if err := v.Render(rc); err != nil {
				return err
			}
		}
	}
	e.bus.viewRendered(rc, st)
	return nil
}

func (e *Execution) pause(rc *requestContext) {
	for i, s := range e.sessions {
		if i == len(e.sessions)-1 {
			s.status = api.SessionPaused
		} else {
			s.status = api.SessionSuspended
		}
	}
	k := e.keys.KeyFor(e.key, e.latestSnapshot)
	e.key = &k
	if r := rc.ext.Redirect(); r.Kind == api.RedirectFlowExecution && r.Location == "" {
		r.Location = k.String()
		rc.ext.RequestRedirect(r)
	}
	e.bus.paused(rc)
}

func (e *Execution) enterSubflow(rc *requestContext, st *api.State) (step, error) {
	if e.locator == nil {
		return done, fmt.Errorf("%w: no flow locator for subflow %q", api.ErrFlowNotFound, st.Subflow.FlowID)
	}
	child, err := e.locator.Flow(st.Subflow.FlowID)
	if err != nil {
		return done, err
	}
	input := api.NewAttributeMap()
	if err := st.Subflow.Input.Apply(rc, input); err != nil {
		return done, err
	}
	return step{kind: stepStart, flow: child, input: input}, nil
}

func (e *Execution) enterEnd(rc *requestContext, st *api.State) (step, error) {
	output := api.NewAttributeMap()
	if err := st.End.Output.Apply(rc, output); err != nil {
		return done, err
	}
	if e.active().IsRoot() && st.End.FinalView != nil {
		if err := e.render(rc, st, nil, st.End.FinalView); err != nil {
			return done, err
		}
	}
	return e.endActiveSession(rc, st.ID, output)
}

func (e *Execution) endActiveSession(rc *requestContext, outcome string, output *api.AttributeMap) (step, error) {
	s := e.active()
	s.status = api.SessionEnding
	e.bus.sessionEnding(rc, s, outcome, output)
	if err := api.RunActions(rc, s.flow.EndActions); err != nil {
		return done, err
	}
	if err := s.flow.Output.Apply(rc, output); err != nil {
		return done, err
	}
	e.pop()
	s.status = api.SessionEnded
	e.bus.sessionEnded(rc, s, outcome, output)

	parent := e.active()
	if parent == nil {
		e.status = api.StatusEnded
		e.outcome = &api.Outcome{ID: outcome, Output: output.AsMap()}
		e.conversation.Clear()
		e.key = nil
		return done, nil
	}

	if parent.state != nil && parent.state.Subflow != nil {
		if err := parent.state.Subflow.Output.Apply(output, parent.scope); err != nil {
			return done, err
		}
	}
	ev := api.Event{ID: outcome, Attributes: output.AsMap()}
	return step{kind: stepEvent, event: ev}, nil
}

// abandonAbove ends every session above index i without an outcome.
func (e *Execution) abandonAbove(rc *requestContext, i int) {
	for len(e.sessions) > i+1 {
		s := e.active()
		s.status = api.SessionEnding
		empty := api.NewAttributeMap()
		e.bus.sessionEnding(rc, s, "", empty)
		e.pop()
		s.status = api.SessionEnded
		e.bus.sessionEnded(rc, s, "", empty)
	}
}
