package api

import (
	"fmt"
	"sort"
	"strings"
)

// ScopeType names a variable lifetime.
type ScopeType string

const (
	// ScopeRequest lives for a single start/resume call.
	ScopeRequest ScopeType = "request"
	// ScopeFlash survives into the request that follows the one that wrote it.
	ScopeFlash ScopeType = "flash"
	// ScopeView lives while one View state is current.
	ScopeView ScopeType = "view"
	// ScopeFlow lives as long as its flow session.
	ScopeFlow ScopeType = "flow"
	// ScopeConversation is shared by every session of an execution.
	ScopeConversation ScopeType = "conversation"
	// ScopeApplication is owned by the external context.
	ScopeApplication ScopeType = "application"
)

// SearchOrder is the order used when an attribute is looked up without
// naming a scope.
var SearchOrder = []ScopeType{ScopeRequest, ScopeFlash, ScopeView, ScopeFlow, ScopeConversation}

// Prefix returns the expression prefix used for the scope, e.g. "flowScope".
func (s ScopeType) Prefix() string {
	return string(s) + "Scope"
}

// AttributeMap is a string keyed attribute container backing every scope.
//
// It is not safe for concurrent use; an execution is driven by one
// goroutine at a time.
//
// Flash scope is an AttributeMap with an aged layer: Age moves the current
// entries into the aged layer, where they stay readable until Expire drops
// them. Entries written after Age are current again.
type AttributeMap struct {
	values map[string]any
	aged   map[string]any
}

// NewAttributeMap returns an empty map.
func NewAttributeMap() *AttributeMap {
	return &AttributeMap{values: make(map[string]any)}
}

// AttributeMapOf wraps a copy of m.
func AttributeMapOf(m map[string]any) *AttributeMap {
	a := NewAttributeMap()
	for k, v := range m {
		a.values[k] = v
	}
	return a
}

// Get returns the value stored under key.
func (a *AttributeMap) Get(key string) (any, bool) {
	if a == nil {
		return nil, false
	}
	if v, ok := a.values[key]; ok {
		return v, true
	}
	if v, ok := a.aged[key]; ok {
		return v, true
	}
	return nil, false
}

// GetString returns the value under key formatted as a string, or "".
func (a *AttributeMap) GetString(key string) string {
	v, ok := a.Get(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Put stores value under key.
func (a *AttributeMap) Put(key string, value any) {
	if a.values == nil {
		a.values = make(map[string]any)
	}
	delete(a.aged, key)
	a.values[key] = value
}

// PutAll stores every entry of m.
func (a *AttributeMap) PutAll(m map[string]any) {
	for k, v := range m {
		a.Put(k, v)
	}
}

// Remove deletes key and returns the previous value, if any.
func (a *AttributeMap) Remove(key string) (any, bool) {
	v, ok := a.Get(key)
	delete(a.values, key)
	delete(a.aged, key)
	return v, ok
}

// Contains reports whether key is present.
func (a *AttributeMap) Contains(key string) bool {
	_, ok := a.Get(key)
	return ok
}

// Len returns the number of distinct keys.
func (a *AttributeMap) Len() int {
	return len(a.Keys())
}

// Keys returns the attribute names in sorted order.
func (a *AttributeMap) Keys() []string {
	if a == nil {
		return nil
	}
	keys := make([]string, 0, len(a.values)+len(a.aged))
	for k := range a.values {
		keys = append(keys, k)
	}
	for k := range a.aged {
		if _, dup := a.values[k]; !dup {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Clear removes every entry.
func (a *AttributeMap) Clear() {
	a.values = make(map[string]any)
	a.aged = nil
}

// AsMap returns a shallow copy of the contents.
func (a *AttributeMap) AsMap() map[string]any {
	out := make(map[string]any)
	if a == nil {
		return out
	}
	for k, v := range a.aged {
		out[k] = v
	}
	for k, v := range a.values {
		out[k] = v
	}
	return out
}

// Age moves the current entries into the aged layer, replacing whatever
// was aged before.
func (a *AttributeMap) Age() {
	a.aged = a.values
	a.values = make(map[string]any)
}

// Expire drops the aged layer.
func (a *AttributeMap) Expire() {
	a.aged = nil
}

// Lookup implements MappingSource.
func (a *AttributeMap) Lookup(name string) (any, bool) {
	return a.Get(name)
}

// Data implements MappingSource.
func (a *AttributeMap) Data() map[string]any {
	return a.AsMap()
}

func (a *AttributeMap) String() string {
	parts := make([]string, 0, a.Len())
	for _, k := range a.Keys() {
		v, _ := a.Get(k)
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// GetAs returns the value under key asserted to T.
func GetAs[T any](a *AttributeMap, key string) (T, bool) {
	var zero T
	v, ok := a.Get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// Required returns the value under key asserted to T, or an error naming
// the missing or mistyped attribute.
func Required[T any](a *AttributeMap, key string) (T, error) {
	var zero T
	v, ok := a.Get(key)
	if !ok {
		return zero, fmt.Errorf("required attribute %q not present", key)
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("attribute %q is %T, not %T", key, v, zero)
	}
	return t, nil
}
