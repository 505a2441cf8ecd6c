package expr_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/flowexec/internal/engine"
	"github.com/petrijr/flowexec/pkg/api"
	"github.com/petrijr/flowexec/pkg/expr"
)

func launch(t *testing.T, f *api.Flow, input map[string]any) (*engine.Executor, *api.Result) {
	t.Helper()
	x := engine.NewInMemoryExecutor()
	require.NoError(t, x.RegisterFlow(f))
	res, err := x.LaunchExecution(context.Background(), f.ID, input, nil)
	require.NoError(t, err)
	return x, res
}

func end(id string, output ...api.Mapping) *api.State {
	return &api.State{ID: id, Kind: api.KindEnd, End: &api.EndSpec{Output: api.NewMapper(output...)}}
}

func TestJSDecision(t *testing.T) {
	newFlow := func() *api.Flow {
		return &api.Flow{ID: "decide", States: []*api.State{
			{ID: "check", Kind: api.KindDecision, Transitions: []*api.Transition{
				{Criteria: api.If(expr.MustJS("flowScope.n > 10 && n > 10")), Target: api.To("big")},
				{Criteria: api.Any(), Target: api.To("small")},
			}},
			end("big"), end("small"),
		}}
	}
	_, res := launch(t, newFlow(), map[string]any{"n": 11})
	require.Equal(t, "big", res.Outcome.ID)
	_, res = launch(t, newFlow(), map[string]any{"n": 2})
	require.Equal(t, "small", res.Outcome.ID)
}

func TestJSActionSeesRequestAndEvent(t *testing.T) {
	guard := expr.Action(expr.MustJS(`requestParameters.q === "Don" && currentEvent.id === "go"`))
	f := &api.Flow{ID: "guard", States: []*api.State{
		{
			ID:          "form",
			Kind:        api.KindView,
			Transitions: []*api.Transition{{Criteria: api.On("go"), Target: api.To("done"), Actions: []api.Action{guard}}},
		},
		end("done"),
	}}
	x, res := launch(t, f, nil)
	ctx := context.Background()

	again, err := x.ResumeExecution(ctx, res.Key, api.NewLocalExternalContext("go", map[string]string{"q": "Rod"}))
	require.NoError(t, err)
	require.True(t, again.IsPaused())

	done, err := x.ResumeExecution(ctx, res.Key, api.NewLocalExternalContext("go", map[string]string{"q": "Don"}))
	require.NoError(t, err)
	require.True(t, done.IsEnded())
}

func TestScriptResults(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`"next"`, "next"},
		{`1 + 1 == 2`, api.EventYes},
		{`false`, api.EventNo},
		{`undefined`, api.EventSuccess},
		{`42`, "42"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			a, err := expr.Script(tt.src)
			require.NoError(t, err)
			f := &api.Flow{ID: "script", States: []*api.State{
				{ID: "run", Kind: api.KindAction, Actions: []api.Action{a}, Transitions: []*api.Transition{
					{Criteria: api.Any(), Target: api.To("done")},
				}},
				end("done", api.Map("flowScope.seen").To("seen")),
			}}
			f.States[0].ExitActions = []api.Action{api.SetAction(api.ScopeFlow, "seen", expr.MustJS("currentEvent.id"))}
			_, res := launch(t, f, nil)
			require.Equal(t, tt.want, res.Outcome.Output["seen"])
		})
	}
}

func TestJSErrors(t *testing.T) {
	_, err := expr.ParseJS("1 +")
	require.Error(t, err)
	require.Panics(t, func() { expr.MustJS("(") })

	f := &api.Flow{ID: "broken", States: []*api.State{
		{ID: "run", Kind: api.KindAction, Actions: []api.Action{expr.Action(expr.MustJS("missing.value"))},
			Transitions: []*api.Transition{{Criteria: api.Any(), Target: api.To("done")}}},
		end("done"),
	}}
	x := engine.NewInMemoryExecutor()
	require.NoError(t, x.RegisterFlow(f))
	_, err = x.LaunchExecution(context.Background(), "broken", nil, nil)
	require.ErrorContains(t, err, "missing.value")
}

func TestPath(t *testing.T) {
	f := &api.Flow{
		ID: "path",
		StartActions: []api.Action{api.SetAction(api.ScopeFlow, "person", api.Value(map[string]any{
			"name":    "Keith",
			"phones":  []any{"555-0101", "555-0102"},
			"address": map[string]any{"city": "Melbourne"},
		}))},
		States: []*api.State{
			{ID: "copy", Kind: api.KindAction, Actions: []api.Action{
				api.SetAction(api.ScopeFlow, "name", expr.MustPath("flowScope.person.name")),
				api.SetAction(api.ScopeFlow, "city", expr.MustPath("$.flowScope.person.address.city")),
				api.SetAction(api.ScopeFlow, "phone", expr.MustPath("flowScope.person.phones[1]")),
				api.SetAction(api.ScopeFlow, "nothing", expr.MustPath("flowScope.person.missing")),
			}, Transitions: []*api.Transition{{Criteria: api.Any(), Target: api.To("done")}}},
			end("done", api.Map("name"), api.Map("city"), api.Map("phone"), api.Map("nothing")),
		},
	}
	_, res := launch(t, f, nil)
	require.Equal(t, map[string]any{"name": "Keith", "city": "Melbourne", "phone": "555-0102"}, res.Outcome.Output)

	p := expr.MustPath("flowScope.x")
	require.Equal(t, "$.flowScope.x", p.String())
}
