package api

import (
	"fmt"
	"strings"

	"github.com/oliveagle/jsonpath"
	"github.com/spf13/cast"
)

// MappingSource is anything a mapper can read values from: a request
// context, an attribute map or a plain map.
type MappingSource interface {
	// Lookup resolves a (possibly scope-prefixed) attribute name.
	Lookup(name string) (any, bool)
	// Data returns the whole source as a map, used for path lookups.
	Data() map[string]any
}

// MapSource adapts a plain map to MappingSource.
type MapSource map[string]any

// Lookup implements MappingSource.
func (m MapSource) Lookup(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

// Data implements MappingSource.
func (m MapSource) Data() map[string]any { return m }

// Converter turns a mapped value into the target representation.
type Converter func(v any) (any, error)

// Stock converters backed by spf13/cast.
var (
	ToString Converter = func(v any) (any, error) { return cast.ToStringE(v) }
	ToInt    Converter = func(v any) (any, error) { return cast.ToIntE(v) }
	ToInt64  Converter = func(v any) (any, error) { return cast.ToInt64E(v) }
	ToFloat  Converter = func(v any) (any, error) { return cast.ToFloat64E(v) }
	ToBool   Converter = func(v any) (any, error) { return cast.ToBoolE(v) }
)

// Mapping copies a single value from a source to a target attribute.
//
// Source is an attribute name (optionally scope prefixed, "flowScope.x")
// or a JSONPath expression starting with "$" evaluated over the source
// data. A literal mapping ignores Source and always yields Literal.
type Mapping struct {
	Source    string
	Target    string
	Literal   any
	IsLiteral bool
	Converter Converter
	Mandatory bool
}

// Map starts a mapping reading source. The target defaults to the source
// name with any scope prefix removed.
func Map(source string) Mapping {
	return Mapping{Source: source}
}

// Literal starts a mapping that always yields v.
func Literal(v any) Mapping {
	return Mapping{Literal: v, IsLiteral: true, Source: fmt.Sprintf("'%v'", v)}
}

// To sets the target attribute name.
func (m Mapping) To(target string) Mapping {
	m.Target = target
	return m
}

// Require makes a missing source value a mapping failure.
func (m Mapping) Require() Mapping {
	m.Mandatory = true
	return m
}

// Convert sets the value converter.
func (m Mapping) Convert(c Converter) Mapping {
	m.Converter = c
	return m
}

// Int is shorthand for Convert(ToInt).
func (m Mapping) Int() Mapping {
	return m.Convert(ToInt)
}

func (m Mapping) targetName() string {
	if m.Target != "" {
		return m.Target
	}
	if _, rest, ok := SplitScopePrefix(m.Source); ok {
		return rest
	}
	return m.Source
}

func (m Mapping) value(src MappingSource) (any, bool) {
	if m.IsLiteral {
		return m.Literal, true
	}
	if strings.HasPrefix(m.Source, "$") {
		v, err := jsonpath.JsonPathLookup(src.Data(), m.Source)
		if err != nil {
			return nil, false
		}
		return v, true
	}
	return src.Lookup(m.Source)
}

func (m Mapping) String() string {
	return m.Source + " -> " + m.targetName()
}

// Mapper is an ordered list of mappings applied together.
type Mapper struct {
	Mappings []Mapping
}

// NewMapper returns a mapper applying mappings in order.
func NewMapper(mappings ...Mapping) *Mapper {
	return &Mapper{Mappings: mappings}
}

// Add appends a mapping.
func (mp *Mapper) Add(m Mapping) *Mapper {
	mp.Mappings = append(mp.Mappings, m)
	return mp
}

// Apply evaluates every mapping against src and writes the results into
// target. Missing optional values are skipped. All failures are collected
// into a single *MappingError; successful mappings are still applied.
func (mp *Mapper) Apply(src MappingSource, target *AttributeMap) error {
	if mp == nil {
		return nil
	}
	var failures []MappingFailure
	for _, m := range mp.Mappings {
		v, ok := m.value(src)
		if !ok || v == nil {
			if m.Mandatory {
				failures = append(failures, MappingFailure{Source: m.Source, Target: m.targetName(), Err: ErrRequiredMapping})
			}
			continue
		}
		if m.Converter != nil {
			cv, err := m.Converter(v)
			if err != nil {
				failures = append(failures, MappingFailure{
					Source: m.Source,
					Target: m.targetName(),
					Err:    fmt.Errorf("%w: %v", ErrConversion, err),
				})
				continue
			}
			v = cv
		}
		target.Put(m.targetName(), v)
	}
	if len(failures) > 0 {
		return &MappingError{Failures: failures}
	}
	return nil
}

// SplitScopePrefix splits "flowScope.name" into (ScopeFlow, "name").
func SplitScopePrefix(name string) (ScopeType, string, bool) {
	prefix, rest, ok := strings.Cut(name, ".")
	if !ok {
		return "", "", false
	}
	for _, s := range []ScopeType{ScopeRequest, ScopeFlash, ScopeView, ScopeFlow, ScopeConversation, ScopeApplication} {
		if s.Prefix() == prefix {
			return s, rest, true
		}
	}
	return "", "", false
}
