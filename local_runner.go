package flowexec

import (
	"context"
	"errors"
	"sync"

	"github.com/petrijr/flowexec/pkg/api"
)

// ErrNoPausedExecution is returned by LocalRunner.Signal when no launched
// execution is waiting for input.
var ErrNoPausedExecution = errors.New("flowexec: no paused execution")

// LocalRunner drives one conversation at a time against an Executor,
// remembering the key of the paused execution between calls. It plays the
// part of a browser during development, tests and scripted sessions.
//
// Typical usage:
//
//	runner := flowexec.NewLocalRunner()
//	flow := flowexec.New("checkout").View(...).End(...)
//	flow.MustRegister(runner.Executor)
//
//	_, _ = runner.Launch(ctx, flow.ID(), nil)  // renders the first view
//	_, _ = runner.Signal(ctx, "next", nil)     // resumes it
//	fmt.Println(runner.Output())
type LocalRunner struct {
	// Executor drives the executions launched by this runner.
	Executor Executor

	mu     sync.Mutex
	key    string
	last   *Result
	output string
}

// NewLocalRunner constructs a LocalRunner backed by an in-memory executor.
func NewLocalRunner() *LocalRunner {
	return NewLocalRunnerWith(NewInMemoryExecutor())
}

// NewLocalRunnerWith constructs a LocalRunner driving x.
func NewLocalRunnerWith(x Executor) *LocalRunner {
	return &LocalRunner{Executor: x}
}

// Launch starts flowID, replacing any conversation the runner tracked.
func (r *LocalRunner) Launch(ctx context.Context, flowID string, input map[string]any) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ext := api.NewLocalExternalContext("", nil)
	res, err := r.Executor.LaunchExecution(ctx, flowID, input, ext)
	return r.record(res, ext, err)
}

// Signal delivers eventID with params to the paused execution.
func (r *LocalRunner) Signal(ctx context.Context, eventID string, params map[string]string) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.key == "" {
		return nil, ErrNoPausedExecution
	}
	ext := api.NewLocalExternalContext(eventID, params)
	res, err := r.Executor.ResumeExecution(ctx, r.key, ext)
	return r.record(res, ext, err)
}

// Refresh re-renders the paused view.
func (r *LocalRunner) Refresh(ctx context.Context) (*Result, error) {
	return r.Signal(ctx, "", nil)
}

func (r *LocalRunner) record(res *Result, ext *api.LocalExternalContext, err error) (*Result, error) {
	r.output = ext.Output.String()
	if err != nil {
		return nil, err
	}
	r.last = res
	r.key = ""
	if res.IsPaused() {
		r.key = res.Key
	}
	return res, nil
}

// Key returns the key of the paused execution, or "".
func (r *LocalRunner) Key() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.key
}

// Last returns the result of the last successful call.
func (r *LocalRunner) Last() *Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Output returns what the last call rendered.
func (r *LocalRunner) Output() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.output
}
