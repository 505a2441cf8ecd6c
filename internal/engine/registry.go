package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/petrijr/flowexec/pkg/api"
)

// FlowRegistry is an in-memory api.FlowDefinitionLocator.
type FlowRegistry struct {
	mu   sync.RWMutex
	byID map[string]*api.Flow
}

var _ api.FlowDefinitionLocator = (*FlowRegistry)(nil)

// NewFlowRegistry returns an empty registry.
func NewFlowRegistry() *FlowRegistry {
	return &FlowRegistry{byID: make(map[string]*api.Flow)}
}

// Register assembles f and stores it under its id.
func (r *FlowRegistry) Register(f *api.Flow) error {
	if f == nil {
		return fmt.Errorf("%w: nil flow", api.ErrInvalidState)
	}
	if err := f.Assemble(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[f.ID]; exists {
		return fmt.Errorf("flow %q already registered", f.ID)
	}
	r.byID[f.ID] = f
	return nil
}

// Flow implements api.FlowDefinitionLocator.
func (r *FlowRegistry) Flow(id string) (*api.Flow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", api.ErrFlowNotFound, id)
	}
	return f, nil
}

// IDs returns the registered flow ids in sorted order.
func (r *FlowRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.byID))
	for id := range r.byID {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
