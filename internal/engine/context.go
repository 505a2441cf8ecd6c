package engine

import (
	"context"
	"strings"

	"github.com/petrijr/flowexec/pkg/api"
)

const requestParametersPrefix = "requestParameters"

// requestContext is the api.RequestContext of one start/resume call. The
// request scope is shared by every session touched during the call.
type requestContext struct {
	ctx        context.Context
	ext        api.ExternalContext
	exec       *Execution
	request    *api.AttributeMap
	attributes *api.AttributeMap

	event      api.Event
	transition *api.Transition

	// refresh is set when the call re-renders a paused view.
	refresh bool
	steps   int
}

var _ api.RequestContext = (*requestContext)(nil)

func newRequestContext(ctx context.Context, ext api.ExternalContext, exec *Execution) *requestContext {
	if ctx == nil {
		ctx = context.Background()
	}
	if ext == nil {
		ext = api.NewLocalExternalContext("", nil)
	}
	return &requestContext{
		ctx:        ctx,
		ext:        ext,
		exec:       exec,
		request:    api.NewAttributeMap(),
		attributes: api.NewAttributeMap(),
	}
}

// tick counts one step of the control loop.
func (rc *requestContext) tick(limit int) error {
	rc.steps++
	if limit > 0 && rc.steps > limit {
		return api.ErrStepLimitExceeded
	}
	return nil
}

func (rc *requestContext) Context() context.Context             { return rc.ctx }
func (rc *requestContext) External() api.ExternalContext        { return rc.ext }
func (rc *requestContext) Execution() api.FlowExecutionContext  { return rc.exec }
func (rc *requestContext) CurrentEvent() api.Event              { return rc.event }
func (rc *requestContext) CurrentTransition() *api.Transition   { return rc.transition }
func (rc *requestContext) RequestScope() *api.AttributeMap      { return rc.request }
func (rc *requestContext) ConversationScope() *api.AttributeMap { return rc.exec.conversationScope() }
func (rc *requestContext) Attributes() *api.AttributeMap        { return rc.attributes }

func (rc *requestContext) ActiveSession() (api.FlowSession, error) {
	return rc.exec.ActiveSession()
}

func (rc *requestContext) ActiveFlow() *api.Flow {
	if s := rc.exec.active(); s != nil {
		return s.flow
	}
	return nil
}

func (rc *requestContext) CurrentState() *api.State {
	if s := rc.exec.active(); s != nil {
		return s.state
	}
	return nil
}

func (rc *requestContext) FlashScope() *api.AttributeMap {
	if s := rc.exec.active(); s != nil {
		return s.flash
	}
	return api.NewAttributeMap()
}

func (rc *requestContext) FlowScope() *api.AttributeMap {
	if s := rc.exec.active(); s != nil {
		return s.scope
	}
	return api.NewAttributeMap()
}

func (rc *requestContext) ViewScope() (*api.AttributeMap, error) {
	s := rc.exec.active()
	if s == nil {
		return nil, api.ErrViewScopeUnavailable
	}
	return s.ViewScope()
}

func (rc *requestContext) ApplicationScope() *api.AttributeMap {
	if m := rc.ext.ApplicationMap(); m != nil {
		return m
	}
	return api.NewAttributeMap()
}

func (rc *requestContext) Scope(t api.ScopeType) (*api.AttributeMap, error) {
	switch t {
	case api.ScopeRequest:
		return rc.request, nil
	case api.ScopeFlash:
		return rc.FlashScope(), nil
	case api.ScopeView:
		return rc.ViewScope()
	case api.ScopeFlow:
		return rc.FlowScope(), nil
	case api.ScopeConversation:
		return rc.ConversationScope(), nil
	case api.ScopeApplication:
		return rc.ApplicationScope(), nil
	}
	return nil, api.ErrInvalidState
}

// Lookup resolves "scopeScope.name", "requestParameters.name" or a bare
// name searched through request, flash, view, flow and conversation scope.
func (rc *requestContext) Lookup(name string) (any, bool) {
	if scope, rest, ok := api.SplitScopePrefix(name); ok {
		m, err := rc.Scope(scope)
		if err != nil {
			return nil, false
		}
		return m.Get(rest)
	}
	if param, ok := strings.CutPrefix(name, requestParametersPrefix+"."); ok {
		return rc.ext.Parameter(param)
	}
	for _, scope := range api.SearchOrder {
		m, err := rc.Scope(scope)
		if err != nil {
			continue
		}
		if v, ok := m.Get(name); ok {
			return v, true
		}
	}
	return nil, false
}

// Data flattens the searchable scopes so that earlier scopes in the search
// order win, and also exposes each scope under its prefix.
func (rc *requestContext) Data() map[string]any {
	out := make(map[string]any)
	for i := len(api.SearchOrder) - 1; i >= 0; i-- {
		scope := api.SearchOrder[i]
		m, err := rc.Scope(scope)
		if err != nil {
			continue
		}
		for k, v := range m.AsMap() {
			out[k] = v
		}
		out[scope.Prefix()] = m.AsMap()
	}
	out[api.ScopeApplication.Prefix()] = rc.ApplicationScope().AsMap()
	params := make(map[string]any)
	for k, v := range rc.ext.Parameters() {
		params[k] = v
	}
	out[requestParametersPrefix] = params
	return out
}
