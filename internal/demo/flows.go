package demo

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cast"

	"github.com/petrijr/flowexec"
	"github.com/petrijr/flowexec/pkg/api"
)

const (
	SearchFlowID = "person.Search"
	DetailFlowID = "person.Detail"
)

// SearchFlow lists people by last name prefix. Selecting a person opens
// the detail subflow; any outcome of it returns to a refreshed list.
//
//	getPersonList -> viewPersonList -> person.Detail -> getPersonList
//	                               \-> finish
func SearchFlow(dir *Directory) *flowexec.FlowBuilder {
	return flowexec.New(SearchFlowID).
		Input(api.Map("lastName")).
		Var("lastName", func(api.RequestContext) (any, error) { return "", nil }).
		Action("getPersonList", findPeople(dir)).
		On(api.EventSuccess, "viewPersonList").
		View("viewPersonList", flowexec.TextView(renderList)).
		On("search", "getPersonList", flowexec.Set(api.ScopeFlow, "lastName", api.Attribute("requestParameters.lastName"))).
		On("select", "person.Detail", flowexec.Evaluate(flowexec.JS(`requestParameters.id !== undefined && requestParameters.id !== ""`))).
		On("finish", "finish").
		Subflow("person.Detail", DetailFlowID).
		SubflowInput(api.Map("requestParameters.id").To("id").Require()).
		SubflowOutput(api.Map("viewed").To("lastViewed")).
		OnAny("getPersonList").
		End("finish").
		EndOutput(api.Map("flowScope.lastName").To("lastName")).
		FinalView(flowexec.TextView(func(_ api.RequestContext, w io.Writer) error {
			_, err := fmt.Fprintln(w, "Goodbye.")
			return err
		}))
}

// DetailFlow shows one person. Colleagues open a nested detail session.
func DetailFlow(dir *Directory) *flowexec.FlowBuilder {
	return flowexec.New(DetailFlowID).
		Input(api.Map("id").Require().Int()).
		Action("getDetails", loadPerson(dir)).
		On(api.EventSuccess, "viewDetails").
		View("viewDetails", flowexec.TextView(renderDetails)).
		On("back", "finish").
		On("colleague", "colleagueDetail").
		Subflow("colleagueDetail", DetailFlowID).
		SubflowInput(api.Map("requestParameters.id").To("id").Require()).
		OnAny("viewDetails").
		End("finish").
		EndOutput(api.Map("flowScope.id").To("viewed")).
		End("notFound").
		EndOutput(api.Literal(true).To("notFound")).
		GlobalOnException("notFound", api.ErrorIs(ErrPersonNotFound))
}

// Register registers both flows with x.
func Register(x flowexec.Executor, dir *Directory) error {
	if err := DetailFlow(dir).Register(x); err != nil {
		return err
	}
	return SearchFlow(dir).Register(x)
}

func findPeople(dir *Directory) api.Action {
	return flowexec.TypedAction(api.ScopeFlow, "persons", func(_ context.Context, rc api.RequestContext) ([]any, error) {
		prefix := rc.FlowScope().GetString("lastName")
		people := dir.Search(prefix)
		out := make([]any, 0, len(people))
		for _, p := range people {
			out = append(out, p.Attributes())
		}
		return out, nil
	})
}

func loadPerson(dir *Directory) api.Action {
	return flowexec.TypedAction(api.ScopeFlow, "person", func(_ context.Context, rc api.RequestContext) (map[string]any, error) {
		raw, _ := rc.FlowScope().Get("id")
		id, err := cast.ToIntE(raw)
		if err != nil {
			return nil, fmt.Errorf("person id %v: %w", raw, err)
		}
		p, ok := dir.Get(id)
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrPersonNotFound, id)
		}
		return p.Attributes(), nil
	})
}

func renderList(rc api.RequestContext, w io.Writer) error {
	fs := rc.FlowScope()
	if _, err := fmt.Fprintf(w, "People matching %q:\n", fs.GetString("lastName")); err != nil {
		return err
	}
	persons, _ := api.GetAs[[]any](fs, "persons")
	for _, v := range persons {
		p := cast.ToStringMap(v)
		if _, err := fmt.Fprintf(w, "  [%v] %v %v\n", p["id"], p["firstName"], p["lastName"]); err != nil {
			return err
		}
	}
	if last, ok := fs.Get("lastViewed"); ok {
		if _, err := fmt.Fprintf(w, "Last viewed: %v\n", last); err != nil {
			return err
		}
	}
	if msg := rc.FlashScope().GetString(api.FlowExecutionExceptionMessageAttribute); msg != "" {
		if _, err := fmt.Fprintf(w, "Error: %s\n", msg); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "Events: search(lastName), select(id), finish")
	return err
}

func renderDetails(rc api.RequestContext, w io.Writer) error {
	p := cast.ToStringMap(rc.FlowScope().AsMap()["person"])
	_, err := fmt.Fprintf(w, "%v %v\nPhone: %v\nColleagues: %v\nEvents: back, colleague(id)\n",
		p["firstName"], p["lastName"], p["phone"], p["colleagues"])
	return err
}
