package flowexec

import (
	"context"
	"database/sql"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/flowexec/internal/engine"
	"github.com/petrijr/flowexec/internal/persistence"
	"github.com/petrijr/flowexec/internal/taskqueue"
	"github.com/petrijr/flowexec/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Executor             = api.Executor
	Flow                 = api.Flow
	State                = api.State
	Transition           = api.Transition
	Action               = api.Action
	ActionFunc           = api.ActionFunc
	Event                = api.Event
	Expression           = api.Expression
	RequestContext       = api.RequestContext
	ExternalContext      = api.ExternalContext
	LocalExternalContext = api.LocalExternalContext
	Result               = api.Result
	Outcome              = api.Outcome
	AttributeMap         = api.AttributeMap
	Mapping              = api.Mapping
	ExecutionListener    = api.ExecutionListener
	LoggingListener      = api.LoggingListener
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	StaticListenerLoader = api.StaticListenerLoader
	RepositoryOptions    = persistence.Options
	Queue                = taskqueue.Queue
	Task                 = taskqueue.Task
)

// Re-export common helpers.

var (
	NewLoggingListener       = api.NewLoggingListener
	NewStaticListenerLoader  = api.NewStaticListenerLoader
	NewLocalExternalContext  = api.NewLocalExternalContext
	NewMapper                = api.NewMapper
	Map                      = api.Map
	Literal                  = api.Literal
	EventOf                  = api.EventOf
	Success                  = api.Success
	Failure                  = api.Failure
	ParseKey                 = api.ParseKey
	DefaultRepositoryOptions = persistence.Options{Serializer: persistence.DefaultSerializer()}
)

// Re-export result values for convenience.

const (
	ResultPaused = api.ResultPaused
	ResultEnded  = api.ResultEnded
)

// Executor constructors
// These wrap the internal/engine package so external callers
// never need to import internal packages.

// ExecutorConfig configures NewExecutor.
type ExecutorConfig = engine.Config

// NewExecutor returns an Executor built from cfg.
func NewExecutor(cfg ExecutorConfig) Executor {
	return engine.NewExecutor(cfg)
}

// NewInMemoryExecutor returns an Executor keeping paused executions in
// process memory.
func NewInMemoryExecutor() Executor {
	return engine.NewInMemoryExecutor()
}

// NewInMemoryExecutorWithListeners returns an in-memory Executor notifying
// listeners for every flow.
func NewInMemoryExecutorWithListeners(listeners ...ExecutionListener) Executor {
	return engine.NewExecutor(engine.Config{
		Listeners: api.NewStaticListenerLoader(listeners...),
		Options:   engine.Options{MaxSteps: engine.DefaultMaxSteps},
	})
}

// NewSQLiteExecutor returns an Executor that stores paused executions in
// a SQLite database. Flow definitions are kept in memory.
func NewSQLiteExecutor(db *sql.DB, opts RepositoryOptions) (Executor, error) {
	return engine.NewSQLiteExecutor(db, opts)
}

// NewPostgresExecutor returns an Executor that stores paused executions in
// PostgreSQL.
func NewPostgresExecutor(db *sql.DB, opts RepositoryOptions) (Executor, error) {
	return engine.NewPostgresExecutor(db, opts)
}

// NewRedisExecutor returns an Executor that stores paused executions in
// Redis.
func NewRedisExecutor(client *redis.Client, opts RepositoryOptions) Executor {
	return engine.NewRedisExecutor(client, opts)
}

// Convenience helpers that just forward to the underlying Executor.

// Launch starts flowID with input, delivering no request parameters.
func Launch(ctx context.Context, x Executor, flowID string, input map[string]any) (*Result, error) {
	return x.LaunchExecution(ctx, flowID, input, nil)
}

// Signal resumes the execution stored under key with eventID and params.
func Signal(ctx context.Context, x Executor, key, eventID string, params map[string]string) (*Result, error) {
	return x.ResumeExecution(ctx, key, api.NewLocalExternalContext(eventID, params))
}

// Refresh re-renders the paused view of the execution stored under key.
func Refresh(ctx context.Context, x Executor, key string) (*Result, error) {
	return x.ResumeExecution(ctx, key, api.NewLocalExternalContext("", nil))
}

// Task queues for pkg/worker.

// NewInMemoryQueue returns a Queue kept in process memory.
func NewInMemoryQueue() Queue {
	return taskqueue.NewInMemoryQueue()
}

// NewSQLiteQueue returns a Queue persisted in a SQLite database.
func NewSQLiteQueue(db *sql.DB) (Queue, error) {
	return taskqueue.NewSQLiteQueue(db)
}

// NewPostgresQueue returns a Queue persisted in PostgreSQL.
func NewPostgresQueue(db *sql.DB) (Queue, error) {
	return taskqueue.NewPostgresQueue(db)
}

// NewRedisQueue returns a Queue kept in a Redis sorted set.
func NewRedisQueue(client *redis.Client, prefix string) Queue {
	return taskqueue.NewRedisQueue(client, prefix)
}
