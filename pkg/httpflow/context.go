package httpflow

import (
	"bytes"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/petrijr/flowexec/pkg/api"
)

// EventParam is the request parameter carrying the event id.
const EventParam = "_eventId"

// eventPrefix marks submit-button style event parameters, "_eventId_next".
const eventPrefix = EventParam + "_"

// externalContext adapts one HTTP request to api.ExternalContext. View
// output is buffered so a redirect can still be issued after rendering.
type externalContext struct {
	req         *http.Request
	params      map[string]string
	request     *api.AttributeMap
	session     *api.AttributeMap
	application *api.AttributeMap
	body        bytes.Buffer
	redirect    api.Redirect
}

var _ api.ExternalContext = (*externalContext)(nil)

func newExternalContext(r *http.Request, application *api.AttributeMap) (*externalContext, error) {
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	params := make(map[string]string, len(r.Form))
	for name, values := range r.Form {
		if len(values) > 0 {
			params[name] = values[0]
		}
	}
	return &externalContext{
		req:         r,
		params:      params,
		request:     api.NewAttributeMap(),
		session:     api.NewAttributeMap(),
		application: application,
	}, nil
}

func (c *externalContext) EventID() string {
	if id := c.params[EventParam]; id != "" {
		return id
	}
	names := make([]string, 0, len(c.params))
	for name := range c.params {
		if isEventParam(name) && name != EventParam {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	return strings.TrimPrefix(names[0], eventPrefix)
}

func (c *externalContext) Parameter(name string) (string, bool) {
	v, ok := c.params[name]
	return v, ok
}

func (c *externalContext) Parameters() map[string]string { return c.params }

func (c *externalContext) RequestMap() *api.AttributeMap     { return c.request }
func (c *externalContext) SessionMap() *api.AttributeMap     { return c.session }
func (c *externalContext) ApplicationMap() *api.AttributeMap { return c.application }
func (c *externalContext) Writer() io.Writer                 { return &c.body }
func (c *externalContext) RequestRedirect(r api.Redirect)    { c.redirect = r }
func (c *externalContext) Redirect() api.Redirect            { return c.redirect }

// input converts request parameters to flow input, dropping event
// parameters.
func (c *externalContext) input() map[string]any {
	in := make(map[string]any, len(c.params))
	for k, v := range c.params {
		if isEventParam(k) {
			continue
		}
		in[k] = v
	}
	return in
}

func isEventParam(name string) bool {
	return name == EventParam || strings.HasPrefix(name, eventPrefix) && len(name) > len(eventPrefix)
}
