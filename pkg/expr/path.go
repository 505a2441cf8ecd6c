package expr

import (
	"fmt"
	"strings"

	"github.com/oliveagle/jsonpath"

	"github.com/petrijr/flowexec/pkg/api"
)

// Path is a compiled JSONPath expression evaluated over the request
// context data, e.g. "$.flowScope.person.name" or "$.requestParameters.q".
type Path struct {
	src      string
	compiled *jsonpath.Compiled
}

var _ api.Expression = (*Path)(nil)

// ParsePath compiles a JSONPath expression. A missing leading "$." is
// added.
func ParsePath(src string) (*Path, error) {
	if !strings.HasPrefix(src, "$") {
		src = "$." + src
	}
	c, err := jsonpath.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("compile path %q: %w", src, err)
	}
	return &Path{src: src, compiled: c}, nil
}

// MustPath is like ParsePath but panics on error.
func MustPath(src string) *Path {
	p, err := ParsePath(src)
	if err != nil {
		panic(err)
	}
	return p
}

// Evaluate implements api.Expression. A path that matches nothing yields
// nil.
func (p *Path) Evaluate(rc api.RequestContext) (any, error) {
	v, err := p.compiled.Lookup(rc.Data())
	if err != nil {
		return nil, nil
	}
	return v, nil
}

func (p *Path) String() string { return p.src }
