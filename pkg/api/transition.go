package api

import (
	"fmt"

	"github.com/spf13/cast"
)

// AnyEvent is the wildcard event criteria.
const AnyEvent = "*"

// TransitionCriteria decides whether a transition matches the current
// request.
type TransitionCriteria interface {
	Test(rc RequestContext) (bool, error)
}

// EventCriteria matches the current event id, or any event for "*".
type EventCriteria string

// Test implements TransitionCriteria.
func (c EventCriteria) Test(rc RequestContext) (bool, error) {
	if c == AnyEvent {
		return true, nil
	}
	return rc.CurrentEvent().ID == string(c), nil
}

func (c EventCriteria) String() string { return "on " + string(c) }

// ExpressionCriteria matches when its expression evaluates to true.
type ExpressionCriteria struct {
	Expr Expression
}

// Test implements TransitionCriteria.
func (c ExpressionCriteria) Test(rc RequestContext) (bool, error) {
	v, err := c.Expr.Evaluate(rc)
	if err != nil {
		return false, err
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return false, fmt.Errorf("criteria expression: %w", err)
	}
	return b, nil
}

func (c ExpressionCriteria) String() string { return "if <expression>" }

// On matches the named event.
func On(eventID string) TransitionCriteria { return EventCriteria(eventID) }

// Any matches every event.
func Any() TransitionCriteria { return EventCriteria(AnyEvent) }

// If matches when expr evaluates to true.
func If(expr Expression) TransitionCriteria { return ExpressionCriteria{Expr: expr} }

// TargetResolver resolves the id of the state a transition enters.
type TargetResolver interface {
	Resolve(rc RequestContext) (string, error)
}

// StaticTarget names the target state directly.
type StaticTarget string

// Resolve implements TargetResolver.
func (t StaticTarget) Resolve(RequestContext) (string, error) { return string(t), nil }

// ExpressionTarget evaluates an expression to the target state id.
type ExpressionTarget struct {
	Expr Expression
}

// Resolve implements TargetResolver.
func (t ExpressionTarget) Resolve(rc RequestContext) (string, error) {
	v, err := t.Expr.Evaluate(rc)
	if err != nil {
		return "", err
	}
	id, err := cast.ToStringE(v)
	if err != nil || id == "" {
		return "", fmt.Errorf("%w: expression yielded %v", ErrNoTransitionTarget, v)
	}
	return id, nil
}

// To targets the named state.
func To(stateID string) TargetResolver { return StaticTarget(stateID) }

// ToExpression targets the state named by expr.
func ToExpression(expr Expression) TargetResolver { return ExpressionTarget{Expr: expr} }

// Transition is a guarded edge out of a state.
type Transition struct {
	// Criteria decides whether the transition matches; nil always matches.
	Criteria TransitionCriteria
	// Actions are execution criteria: any result other than success, yes,
	// true or empty vetoes the transition.
	Actions []Action
	// Target resolves the state to enter. A nil target keeps a View state
	// current and re-renders it.
	Target     TargetResolver
	Attributes map[string]any
}

// Matches reports whether the transition matches the current request.
func (t *Transition) Matches(rc RequestContext) (bool, error) {
	if t.Criteria == nil {
		return true, nil
	}
	return t.Criteria.Test(rc)
}

// CanExecute runs the execution criteria and reports whether they allow
// the transition to proceed.
func (t *Transition) CanExecute(rc RequestContext) (bool, error) {
	for _, a := range t.Actions {
		ev, err := a.Execute(rc)
		if err != nil {
			return false, err
		}
		if !ev.allowsTransition() {
			return false, nil
		}
	}
	return true, nil
}

func (t *Transition) String() string {
	on := "always"
	if s, ok := t.Criteria.(fmt.Stringer); ok {
		on = s.String()
	}
	to := "(stay)"
	switch tg := t.Target.(type) {
	case StaticTarget:
		to = string(tg)
	case nil:
	default:
		to = "<expression>"
	}
	return on + " -> " + to
}

// MatchTransition returns the first transition matching rc, searching each
// list in order. It returns nil when none matches.
func MatchTransition(rc RequestContext, lists ...[]*Transition) (*Transition, error) {
	for _, ts := range lists {
		for _, t := range ts {
			ok, err := t.Matches(rc)
			if err != nil {
				return nil, err
			}
			if ok {
				return t, nil
			}
		}
	}
	return nil, nil
}
