package config

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	"github.com/petrijr/flowexec/internal/engine"
	"github.com/petrijr/flowexec/internal/persistence"
	"github.com/petrijr/flowexec/internal/taskqueue"
	"github.com/petrijr/flowexec/pkg/api"
	"github.com/petrijr/flowexec/pkg/tracing"
	"github.com/petrijr/flowexec/pkg/worker"
)

// Runtime is an executor wired from configuration together with the
// resources it holds.
type Runtime struct {
	Executor *engine.Executor
	Metrics  *api.BasicMetrics
	History  persistence.HistoryStore
	Queue    taskqueue.Queue
	Worker   *worker.Worker
	closers  []io.Closer
}

// Close releases database and Redis connections.
func (r *Runtime) Close() error {
	var first error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Serializer returns the snapshot serializer selected by the store config.
func (c StoreConfig) Serializer() (persistence.Serializer, error) {
	codec, err := persistence.CodecByName(c.Codec)
	if err != nil {
		return persistence.Serializer{}, err
	}
	comp := persistence.Compression(c.Compression)
	switch comp {
	case "", persistence.CompressionNone, persistence.CompressionGzip, persistence.CompressionZstd:
	default:
		return persistence.Serializer{}, fmt.Errorf("unknown compression %q", c.Compression)
	}
	return persistence.Serializer{Codec: codec, Compression: comp}, nil
}

// Store is an opened snapshot repository with its history store.
type Store struct {
	Repository persistence.Repository
	History    persistence.HistoryStore
	// Closer is nil for the memory store.
	Closer io.Closer

	db     *sql.DB
	client *redis.Client
}

// Open opens the configured snapshot repository. SQL stores keep history
// in the same database; the others keep it in memory.
func (c StoreConfig) Open() (*Store, error) {
	ser, err := c.Serializer()
	if err != nil {
		return nil, err
	}
	opts := persistence.Options{TTL: c.TTL, MaxSnapshots: c.MaxSnapshots, Serializer: ser}

	switch c.Type {
	case StoreMemory:
		return &Store{
			Repository: persistence.NewMemoryRepository(opts),
			History:    persistence.NewMemoryHistoryStore(),
		}, nil
	case StoreSQLite:
		db, err := sql.Open("sqlite", c.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", c.DSN, err)
		}
		// modernc sqlite serializes writers; a single connection avoids
		// SQLITE_BUSY between the lease and snapshot statements.
		db.SetMaxOpenConns(1)
		return openSQL(db, persistence.SQLite, opts)
	case StorePostgres:
		db, err := sql.Open("pgx", c.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return openSQL(db, persistence.Postgres, opts)
	case StoreRedis:
		client := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		return &Store{
			Repository: persistence.NewRedisRepository(client, c.Prefix, opts),
			History:    persistence.NewMemoryHistoryStore(),
			Closer:     client,
			client:     client,
		}, nil
	}
	return nil, fmt.Errorf("unknown store type %q", c.Type)
}

func openSQL(db *sql.DB, dialect persistence.Dialect, opts persistence.Options) (*Store, error) {
	repo, err := persistence.NewSQLRepository(db, dialect, opts)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	history, err := persistence.NewSQLHistoryStore(db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Repository: repo, History: history, Closer: db, db: db}, nil
}

// OpenQueue opens the configured task queue. SQL and Redis queues share
// the store's connection when they use the same backend.
func (c QueueConfig) OpenQueue(store *Store, sc StoreConfig) (taskqueue.Queue, error) {
	typ := c.Type
	if typ == "" {
		typ = StoreMemory
		if sc.Type != StoreMemory {
			typ = sc.Type
		}
	}
	if typ != StoreMemory && typ != sc.Type {
		return nil, fmt.Errorf("queue type %q requires store type %q, have %q", typ, typ, sc.Type)
	}
	switch typ {
	case StoreMemory:
		return taskqueue.NewInMemoryQueue(), nil
	case StoreSQLite:
		return taskqueue.NewSQLiteQueue(store.db)
	case StorePostgres:
		return taskqueue.NewPostgresQueue(store.db)
	case StoreRedis:
		return taskqueue.NewRedisQueue(store.client, sc.Prefix), nil
	}
	return nil, fmt.Errorf("unknown queue type %q", typ)
}

// NewRuntime builds an executor with logging, metrics, tracing and
// history listeners attached to every flow.
func (c *Config) NewRuntime(logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	store, err := c.Store.Open()
	if err != nil {
		return nil, err
	}
	metrics := &api.BasicMetrics{}
	listeners := api.NewStaticListenerLoader(
		api.NewLoggingListener(logger),
		metrics,
		tracing.NewListener(),
		engine.NewHistoryListener(store.History, logger),
	)
	exec := engine.NewExecutor(engine.Config{
		Repository: store.Repository,
		Listeners:  listeners,
		Options: engine.Options{
			MaxSteps:              c.Engine.MaxSteps,
			AlwaysRedirectOnPause: c.Engine.AlwaysRedirectOnPause,
			Logger:                logger,
		},
		AlwaysGenerateNewKey: c.Engine.AlwaysGenerateNewKey,
		LockTimeout:          c.Engine.LockTimeout,
		LeaseTTL:             c.Engine.LeaseTTL,
		Logger:               logger,
	})
	rt := &Runtime{Executor: exec, Metrics: metrics, History: store.History}
	if store.Closer != nil {
		rt.closers = append(rt.closers, store.Closer)
	}

	queue, err := c.Queue.OpenQueue(store, c.Store)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Queue = queue
	rt.Worker = worker.NewWithConfig(exec, queue, worker.Config{
		MaxAttempts: c.Queue.MaxAttempts,
		Backoff:     c.Queue.Backoff,
		Logger:      logger,
	})
	return rt, nil
}
