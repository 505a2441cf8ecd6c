package api

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMapper_CopiesAndConverts(t *testing.T) {
	src := MapSource{"foo": "bar", "number": "3", "required": "9"}
	target := NewAttributeMap()

	mp := NewMapper(
		Map("foo"),
		Map("number").Int(),
		Map("required").Require().Int(),
		Map("absent"),
	)
	require.NoError(t, mp.Apply(src, target))

	require.Equal(t, map[string]any{"foo": "bar", "number": 3, "required": 9}, target.AsMap())
}

func TestMapper_RequiredMissingCollectsAllFailures(t *testing.T) {
	src := MapSource{"number": "three"}
	target := NewAttributeMap()

	err := NewMapper(
		Map("required").Require(),
		Map("number").Int(),
		Literal("ok").To("applied"),
	).Apply(src, target)

	var me *MappingError
	require.ErrorAs(t, err, &me)
	require.Len(t, me.Failures, 2)
	require.True(t, errors.Is(err, ErrRequiredMapping))
	require.True(t, errors.Is(err, ErrConversion))
	require.True(t, IsMappingError(err))

	// Successful mappings are still applied.
	require.Equal(t, "ok", target.GetString("applied"))
}

func TestMapping_TargetDefaultsToUnprefixedSource(t *testing.T) {
	require.Equal(t, "lastName", Map("flowScope.lastName").targetName())
	require.Equal(t, "id", Map("id").targetName())
	require.Equal(t, "x", Map("flowScope.lastName").To("x").targetName())
	require.Equal(t, "flowScope.lastName -> lastName", Map("flowScope.lastName").String())
}

func TestMapping_JSONPathSource(t *testing.T) {
	src := MapSource{"person": map[string]any{"name": "Keith", "id": 1}}
	target := NewAttributeMap()

	require.NoError(t, NewMapper(Map("$.person.name").To("name")).Apply(src, target))
	require.Equal(t, "Keith", target.GetString("name"))
}

func TestNilMapperIsNoop(t *testing.T) {
	var mp *Mapper
	require.NoError(t, mp.Apply(MapSource{"a": 1}, NewAttributeMap()))
}
