package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/petrijr/flowexec/internal/persistence"
	"github.com/petrijr/flowexec/pkg/api"
)

const tracerName = "github.com/petrijr/flowexec"

const (
	defaultLockTimeout = 5 * time.Second
	defaultLeaseTTL    = 30 * time.Second
	lockPollInterval   = 10 * time.Millisecond
)

// Executor drives flow executions on behalf of requests and keeps paused
// executions in a repository between them.
type Executor struct {
	registry *FlowRegistry
	repo     persistence.Repository
	factory  *ExecutionFactory

	lockTimeout time.Duration
	leaseTTL    time.Duration
	logger      *slog.Logger
	tracer      trace.Tracer
}

var _ api.Executor = (*Executor)(nil)

// Config describes how to construct an Executor.
type Config struct {
	Repository persistence.Repository
	// Registry defaults to an empty FlowRegistry.
	Registry  *FlowRegistry
	Listeners api.ListenerLoader
	Options   Options
	// AlwaysGenerateNewKey gives every pause a new snapshot id.
	AlwaysGenerateNewKey bool
	// LockTimeout bounds how long a resume waits for the execution lease.
	LockTimeout time.Duration
	LeaseTTL    time.Duration
	Logger      *slog.Logger
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
}

// NewExecutor creates an Executor using the given configuration.
func NewExecutor(cfg Config) *Executor {
	if cfg.Repository == nil {
		cfg.Repository = persistence.NewMemoryRepository(persistence.Options{Serializer: persistence.DefaultSerializer()})
	}
	if cfg.Registry == nil {
		cfg.Registry = NewFlowRegistry()
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = defaultLockTimeout
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = defaultLeaseTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Options.Logger == nil {
		cfg.Options.Logger = cfg.Logger
	}
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Executor{
		registry: cfg.Registry,
		repo:     cfg.Repository,
		factory: &ExecutionFactory{
			Locator:   cfg.Registry,
			Listeners: cfg.Listeners,
			Keys:      NewKeyFactory(cfg.AlwaysGenerateNewKey),
			Options:   cfg.Options,
		},
		lockTimeout: cfg.LockTimeout,
		leaseTTL:    cfg.LeaseTTL,
		logger:      cfg.Logger,
		tracer:      tp.Tracer(tracerName),
	}
}

// NewInMemoryExecutor returns an executor keeping paused executions in
// process memory.
func NewInMemoryExecutor() *Executor {
	return NewExecutor(Config{Options: Options{MaxSteps: DefaultMaxSteps}})
}

// NewSQLiteExecutor returns an executor storing paused executions in db.
func NewSQLiteExecutor(db *sql.DB, opts persistence.Options) (*Executor, error) {
	repo, err := persistence.NewSQLiteRepository(db, opts)
	if err != nil {
		return nil, err
	}
	return NewExecutor(Config{Repository: repo, Options: Options{MaxSteps: DefaultMaxSteps}}), nil
}

// NewPostgresExecutor returns an executor storing paused executions in db.
func NewPostgresExecutor(db *sql.DB, opts persistence.Options) (*Executor, error) {
	repo, err := persistence.NewPostgresRepository(db, opts)
	if err != nil {
		return nil, err
	}
	return NewExecutor(Config{Repository: repo, Options: Options{MaxSteps: DefaultMaxSteps}}), nil
}

// NewRedisExecutor returns an executor storing paused executions in Redis.
func NewRedisExecutor(client *redis.Client, opts persistence.Options) *Executor {
	repo := persistence.NewRedisRepository(client, "flowexec:", opts)
	return NewExecutor(Config{Repository: repo, Options: Options{MaxSteps: DefaultMaxSteps}})
}

// Registry returns the flow registry used as definition locator.
func (x *Executor) Registry() *FlowRegistry { return x.registry }

// Repository returns the snapshot repository.
func (x *Executor) Repository() persistence.Repository { return x.repo }

// RegisterFlow implements api.Executor.
func (x *Executor) RegisterFlow(f *api.Flow) error {
	return x.registry.Register(f)
}

// LaunchExecution implements api.Executor.
func (x *Executor) LaunchExecution(ctx context.Context, flowID string, input map[string]any, ext api.ExternalContext) (res *api.Result, err error) {
	ctx, span := x.tracer.Start(ctx, "flowexec.launch",
		trace.WithAttributes(attribute.String("flowexec.flow_id", flowID)),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer func() { endSpan(span, res, err) }()

	flow, err := x.registry.Flow(flowID)
	if err != nil {
		return nil, err
	}
	if ext == nil {
		ext = api.NewLocalExternalContext("", nil)
	}

	exec := x.factory.CreateExecution(flow)
	if err := exec.Start(ctx, input, ext); err != nil {
		return nil, err
	}
	return x.resultOf(ctx, exec, ext)
}

// ResumeExecution implements api.Executor. The execution lease is held for
// the whole call; a failed resume leaves the stored snapshot untouched.
func (x *Executor) ResumeExecution(ctx context.Context, keyStr string, ext api.ExternalContext) (res *api.Result, err error) {
	ctx, span := x.tracer.Start(ctx, "flowexec.resume",
		trace.WithAttributes(attribute.String("flowexec.key", keyStr)),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer func() { endSpan(span, res, err) }()

	key, err := api.ParseKey(keyStr)
	if err != nil {
		return nil, err
	}
	if ext == nil {
		ext = api.NewLocalExternalContext("", nil)
	}

	owner := uuid.NewString()
	if err := x.lock(ctx, key.ExecutionID, owner); err != nil {
		return nil, err
	}
	defer func() {
		if rerr := x.repo.ReleaseLease(context.WithoutCancel(ctx), key.ExecutionID, owner); rerr != nil {
			x.logger.WarnContext(ctx, "lease_release_failed",
				slog.String("execution_id", key.ExecutionID),
				slog.Any("error", rerr),
			)
		}
	}()

	snap, err := x.repo.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	exec := FromSnapshot(snap)
	if err := x.factory.RestoreState(exec, nil); err != nil {
		return nil, err
	}
	if x.factory.Keys.AlwaysGenerateNewKey {
		latest, err := x.repo.LatestSnapshotID(ctx, key.ExecutionID)
		if err != nil {
			return nil, err
		}
		exec.latestSnapshot = latest
	}
	span.SetAttributes(attribute.String("flowexec.flow_id", exec.FlowID()))

	if err := exec.Resume(ctx, ext); err != nil {
		return nil, err
	}
	if exec.HasEnded() {
		if err := x.repo.Remove(ctx, key.ExecutionID); err != nil {
			return nil, err
		}
	}
	return x.resultOf(ctx, exec, ext)
}

// Snapshot loads the snapshot stored under key without resuming it.
func (x *Executor) Snapshot(ctx context.Context, keyStr string) (*persistence.Snapshot, error) {
	key, err := api.ParseKey(keyStr)
	if err != nil {
		return nil, err
	}
	return x.repo.Load(ctx, key)
}

func (x *Executor) resultOf(ctx context.Context, exec *Execution, ext api.ExternalContext) (*api.Result, error) {
	res := &api.Result{FlowID: exec.FlowID(), Redirect: ext.Redirect()}
	if exec.HasEnded() {
		res.Status = api.ResultEnded
		res.Outcome = exec.Outcome()
		return res, nil
	}
	snap, err := Snapshot(exec)
	if err != nil {
		return nil, err
	}
	if err := x.repo.Save(ctx, snap); err != nil {
		return nil, fmt.Errorf("save flow execution %s: %w", snap.Key, err)
	}
	res.Status = api.ResultPaused
	res.Key = snap.Key.String()
	return res, nil
}

// lock polls for the execution lease until the lock timeout elapses.
func (x *Executor) lock(ctx context.Context, executionID, owner string) error {
	deadline := time.Now().Add(x.lockTimeout)
	for {
		ok, err := x.repo.TryAcquireLease(ctx, executionID, owner, x.leaseTTL)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s", api.ErrExecutionLocked, executionID)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

func endSpan(span trace.Span, res *api.Result, err error) {
	if res != nil {
		span.SetAttributes(attribute.String("flowexec.result", string(res.Status)))
		if res.Key != "" {
			span.SetAttributes(attribute.String("flowexec.key", res.Key))
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
