package flowexec

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/petrijr/flowexec/pkg/api"
)

func echoFlow() *FlowBuilder {
	return New("echo").
		View("ask", TextView(func(rc api.RequestContext, w io.Writer) error {
			_, err := io.WriteString(w, "say something")
			return err
		})).
		On("say", "done", Set(api.ScopeFlow, "said", api.Attribute("requestParameters.text"))).
		End("done").EndOutput(Map("flowScope.said").To("said"))
}

func TestLocalRunner_LaunchSignal(t *testing.T) {
	ctx := context.Background()
	runner := NewLocalRunner()
	echoFlow().MustRegister(runner.Executor)

	if _, err := runner.Signal(ctx, "say", nil); !errors.Is(err, ErrNoPausedExecution) {
		t.Fatalf("expected ErrNoPausedExecution before launch, got %v", err)
	}

	res, err := runner.Launch(ctx, "echo", nil)
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	if !res.IsPaused() || runner.Key() != res.Key {
		t.Fatalf("expected paused result with tracked key, got %+v (key %q)", res, runner.Key())
	}
	if runner.Output() != "say something" {
		t.Fatalf("unexpected output %q", runner.Output())
	}

	if _, err := runner.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if runner.Output() != "say something" {
		t.Fatalf("refresh should re-render, got %q", runner.Output())
	}

	res, err = runner.Signal(ctx, "say", map[string]string{"text": "hi"})
	if err != nil {
		t.Fatalf("signal: %v", err)
	}
	if !res.IsEnded() || res.Outcome.Output["said"] != "hi" {
		t.Fatalf("expected ended with said=hi, got %+v", res)
	}
	if runner.Key() != "" || runner.Last() != res {
		t.Fatalf("runner should forget the key after the flow ended")
	}
}

func TestLocalRunner_ErrorKeepsKey(t *testing.T) {
	ctx := context.Background()
	runner := NewLocalRunner()
	echoFlow().MustRegister(runner.Executor)

	res, err := runner.Launch(ctx, "echo", nil)
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	_, err = runner.Signal(ctx, "shout", nil)
	var nm *api.NoMatchingTransitionError
	if !errors.As(err, &nm) {
		t.Fatalf("expected NoMatchingTransitionError, got %v", err)
	}
	if runner.Key() != res.Key {
		t.Fatalf("a failed signal must keep the paused key")
	}
}

func TestHelpers_LaunchSignalRefresh(t *testing.T) {
	ctx := context.Background()
	x := NewInMemoryExecutorWithListeners(&BasicMetrics{})
	echoFlow().MustRegister(x)

	res, err := Launch(ctx, x, "echo", nil)
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	if _, err := Refresh(ctx, x, res.Key); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	res, err = Signal(ctx, x, res.Key, "say", map[string]string{"text": "bye"})
	if err != nil {
		t.Fatalf("signal: %v", err)
	}
	if res.Status != ResultEnded {
		t.Fatalf("expected ENDED, got %s", res.Status)
	}
}

func TestSQLiteExecutorPersistsAcrossExecutors(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", "file:"+t.TempDir()+"/flowexec.db")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	defer db.Close()

	first, err := NewSQLiteExecutor(db, DefaultRepositoryOptions)
	if err != nil {
		t.Fatalf("NewSQLiteExecutor: %v", err)
	}
	echoFlow().MustRegister(first)
	res, err := Launch(ctx, first, "echo", nil)
	if err != nil {
		t.Fatalf("launch: %v", err)
	}

	// A second executor over the same database resumes where the first paused.
	second, err := NewSQLiteExecutor(db, DefaultRepositoryOptions)
	if err != nil {
		t.Fatalf("NewSQLiteExecutor: %v", err)
	}
	echoFlow().MustRegister(second)
	res, err = Signal(ctx, second, res.Key, "say", map[string]string{"text": "persisted"})
	if err != nil {
		t.Fatalf("signal: %v", err)
	}
	if res.Outcome.Output["said"] != "persisted" {
		t.Fatalf("unexpected output %v", res.Outcome.Output)
	}
}
