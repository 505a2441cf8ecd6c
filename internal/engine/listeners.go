package engine

import "github.com/petrijr/flowexec/pkg/api"

// listenerBus fans hooks out to the listeners attached to an execution, in
// registration order, skipping listeners that do not implement a hook.
type listenerBus struct {
	listeners []api.ExecutionListener
}

func newListenerBus(ls []api.ExecutionListener) *listenerBus {
	filtered := make([]api.ExecutionListener, 0, len(ls))
	for _, l := range ls {
		if l != nil {
			filtered = append(filtered, l)
		}
	}
	return &listenerBus{listeners: filtered}
}

func (b *listenerBus) size() int {
	if b == nil {
		return 0
	}
	return len(b.listeners)
}

func (b *listenerBus) requestSubmitted(rc api.RequestContext) {
	for _, l := range b.listeners {
		if h, ok := l.(api.RequestSubmittedListener); ok {
			h.RequestSubmitted(rc)
		}
	}
}

func (b *listenerBus) requestProcessed(rc api.RequestContext) {
	for _, l := range b.listeners {
		if h, ok := l.(api.RequestProcessedListener); ok {
			h.RequestProcessed(rc)
		}
	}
}

func (b *listenerBus) sessionCreating(rc api.RequestContext, flow *api.Flow) {
	for _, l := range b.listeners {
		if h, ok := l.(api.SessionCreatingListener); ok {
			h.SessionCreating(rc, flow)
		}
	}
}

func (b *listenerBus) sessionStarting(rc api.RequestContext, s api.FlowSession, input *api.AttributeMap) {
	for _, l := range b.listeners {
		if h, ok := l.(api.SessionStartingListener); ok {
			h.SessionStarting(rc, s, input)
		}
	}
}

func (b *listenerBus) sessionStarted(rc api.RequestContext, s api.FlowSession) {
	for _, l := range b.listeners {
		if h, ok := l.(api.SessionStartedListener); ok {
			h.SessionStarted(rc, s)
		}
	}
}

func (b *listenerBus) eventSignaled(rc api.RequestContext, ev api.Event) {
	for _, l := range b.listeners {
		if h, ok := l.(api.EventSignaledListener); ok {
			h.EventSignaled(rc, ev)
		}
	}
}

func (b *listenerBus) transitionExecuting(rc api.RequestContext, t *api.Transition) {
	for _, l := range b.listeners {
		if h, ok := l.(api.TransitionExecutingListener); ok {
			h.TransitionExecuting(rc, t)
		}
	}
}

// stateEntering stops at the first listener vetoing the state.
func (b *listenerBus) stateEntering(rc api.RequestContext, st *api.State) error {
	for _, l := range b.listeners {
		if h, ok := l.(api.StateEnteringListener); ok {
			if err := h.StateEntering(rc, st); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *listenerBus) stateEntered(rc api.RequestContext, prev, st *api.State) {
	for _, l := range b.listeners {
		if h, ok := l.(api.StateEnteredListener); ok {
			h.StateEntered(rc, prev, st)
		}
	}
}

func (b *listenerBus) viewRendering(rc api.RequestContext, st *api.State) {
	for _, l := range b.listeners {
		if h, ok := l.(api.ViewRenderingListener); ok {
			h.ViewRendering(rc, st)
		}
	}
}

func (b *listenerBus) viewRendered(rc api.RequestContext, st *api.State) {
	for _, l := range b.listeners {
		if h, ok := l.(api.ViewRenderedListener); ok {
			h.ViewRendered(rc, st)
		}
	}
}

func (b *listenerBus) paused(rc api.RequestContext) {
	for _, l := range b.listeners {
		if h, ok := l.(api.PausedListener); ok {
			h.Paused(rc)
		}
	}
}

func (b *listenerBus) resuming(rc api.RequestContext) {
	for _, l := range b.listeners {
		if h, ok := l.(api.ResumingListener); ok {
			h.Resuming(rc)
		}
	}
}

func (b *listenerBus) sessionEnding(rc api.RequestContext, s api.FlowSession, outcome string, output *api.AttributeMap) {
	for _, l := range b.listeners {
		if h, ok := l.(api.SessionEndingListener); ok {
			h.SessionEnding(rc, s, outcome, output)
		}
	}
}

func (b *listenerBus) sessionEnded(rc api.RequestContext, s api.FlowSession, outcome string, output *api.AttributeMap) {
	for _, l := range b.listeners {
		if h, ok := l.(api.SessionEndedListener); ok {
			h.SessionEnded(rc, s, outcome, output)
		}
	}
}

func (b *listenerBus) exceptionThrown(rc api.RequestContext, err *api.FlowExecutionError) {
	for _, l := range b.listeners {
		if h, ok := l.(api.ExceptionThrownListener); ok {
			h.ExceptionThrown(rc, err)
		}
	}
}
