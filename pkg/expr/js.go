// Package expr provides api.Expression implementations: JavaScript
// expressions evaluated with goja and JSONPath expressions over the scope
// data of the request context.
package expr

import (
	"fmt"
	"regexp"

	"github.com/dop251/goja"
	"github.com/spf13/cast"

	"github.com/petrijr/flowexec/pkg/api"
)

var identifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// JS is a compiled JavaScript expression. Each evaluation runs in a fresh
// runtime exposing every scope by prefix (flowScope, viewScope, ...),
// requestParameters, currentEvent, and bare attribute names resolved in
// scope search order.
type JS struct {
	src  string
	prog *goja.Program
}

var _ api.Expression = (*JS)(nil)

// ParseJS compiles src.
func ParseJS(src string) (*JS, error) {
	prog, err := goja.Compile("expression", src, true)
	if err != nil {
		return nil, fmt.Errorf("compile expression %q: %w", src, err)
	}
	return &JS{src: src, prog: prog}, nil
}

// MustJS is like ParseJS but panics on error. It simplifies flow
// definitions built at init time.
func MustJS(src string) *JS {
	e, err := ParseJS(src)
	if err != nil {
		panic(err)
	}
	return e
}

// Evaluate implements api.Expression.
func (e *JS) Evaluate(rc api.RequestContext) (any, error) {
	vm := goja.New()
	for k, v := range rc.Data() {
		if !identifier.MatchString(k) {
			continue
		}
		if err := vm.Set(k, v); err != nil {
			return nil, err
		}
	}
	ev := rc.CurrentEvent()
	if err := vm.Set("currentEvent", map[string]any{"id": ev.ID, "attributes": ev.Attributes}); err != nil {
		return nil, err
	}
	val, err := vm.RunProgram(e.prog)
	if err != nil {
		return nil, fmt.Errorf("error executing javascript %q: %w", e.src, err)
	}
	return val.Export(), nil
}

func (e *JS) String() string { return e.src }

// Action returns an action evaluating x and signalling its result: strings
// become the event id, booleans become yes/no, and nil or undefined yields
// success.
func Action(x api.Expression) api.Action {
	return api.ActionFunc(func(rc api.RequestContext) (api.Event, error) {
		v, err := x.Evaluate(rc)
		if err != nil {
			return api.Event{}, err
		}
		switch r := v.(type) {
		case nil:
			return api.Success(), nil
		case bool:
			return api.ResultEvent(r), nil
		case api.Event:
			return r, nil
		}
		id, err := cast.ToStringE(v)
		if err != nil {
			return api.Event{}, fmt.Errorf("expression result %v is not an event id: %w", v, err)
		}
		return api.EventOf(id), nil
	})
}

// Script returns an action running JavaScript src, see Action.
func Script(src string) (api.Action, error) {
	e, err := ParseJS(src)
	if err != nil {
		return nil, err
	}
	return Action(e), nil
}
