package config

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/flowexec/internal/persistence"
	"github.com/petrijr/flowexec/internal/taskqueue"
	"github.com/petrijr/flowexec/pkg/api"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(New(), "")
	require.NoError(t, err)

	require.Equal(t, StoreSQLite, cfg.Store.Type)
	require.Equal(t, "flowexec.db", cfg.Store.DSN)
	require.Equal(t, 24*time.Hour, cfg.Store.TTL)
	require.Equal(t, 5, cfg.Store.MaxSnapshots)
	require.Equal(t, 1000, cfg.Engine.MaxSteps)
	require.Equal(t, 5*time.Second, cfg.Engine.LockTimeout)
	require.False(t, cfg.Engine.AlwaysGenerateNewKey)
	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, ":8080", cfg.HTTP.Addr)
	require.Empty(t, cfg.Queue.Type)
	require.Equal(t, 2, cfg.Queue.Concurrency)
	require.Equal(t, 50*time.Millisecond, cfg.Queue.Backoff)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("FLOWEXEC_STORE_TYPE", "memory")
	t.Setenv("FLOWEXEC_STORE_MAX_SNAPSHOTS", "9")
	t.Setenv("FLOWEXEC_ENGINE_LOCK_TIMEOUT", "250ms")
	t.Setenv("FLOWEXEC_ENGINE_ALWAYS_GENERATE_NEW_KEY", "true")

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	require.Equal(t, StoreMemory, cfg.Store.Type)
	require.Equal(t, 9, cfg.Store.MaxSnapshots)
	require.Equal(t, 250*time.Millisecond, cfg.Engine.LockTimeout)
	require.True(t, cfg.Engine.AlwaysGenerateNewKey)
}

func TestLoadFlagsAndFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "flowexec.yaml")
	require.NoError(t, os.WriteFile(file, []byte("store:\n  type: memory\n  codec: msgpack\nlog:\n  level: debug\n"), 0o600))

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--compression=zstd", "--max-steps=20"}))

	v := New()
	require.NoError(t, BindFlags(v, fs))
	cfg, err := Load(v, file)
	require.NoError(t, err)

	require.Equal(t, StoreMemory, cfg.Store.Type)
	require.Equal(t, "msgpack", cfg.Store.Codec)
	require.Equal(t, "zstd", cfg.Store.Compression)
	require.Equal(t, 20, cfg.Engine.MaxSteps)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := map[string]func(v map[string]any){
		"store_type":  func(v map[string]any) { v["store.type"] = "bolt" },
		"codec":       func(v map[string]any) { v["store.codec"] = "xml" },
		"compression": func(v map[string]any) { v["store.compression"] = "lz4" },
		"redis_addr":  func(v map[string]any) { v["store.type"] = "redis"; v["store.redis-addr"] = "" },
		"sqlite_dsn":  func(v map[string]any) { v["store.dsn"] = "" },
		"max_steps":   func(v map[string]any) { v["engine.max-steps"] = -1 },
		"log_level":   func(v map[string]any) { v["log.level"] = "trace" },
		"queue_type":  func(v map[string]any) { v["queue.type"] = "kafka" },
		"workers":     func(v map[string]any) { v["queue.concurrency"] = 0 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			overrides := map[string]any{}
			mutate(overrides)
			v := New()
			for k, val := range overrides {
				v.Set(k, val)
			}
			_, err := Load(v, "")
			require.ErrorContains(t, err, "invalid config")
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(LogConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("lease_release_failed", "execution_id", "abc")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "lease_release_failed", line["msg"])
	require.Equal(t, "abc", line["execution_id"])

	_, err = NewLogger(LogConfig{Level: "loud"}, &buf)
	require.Error(t, err)
	_, err = NewLogger(LogConfig{Level: "info", Format: "xml"}, &buf)
	require.Error(t, err)
}

func TestStoreSerializer(t *testing.T) {
	ser, err := StoreConfig{Codec: "msgpack", Compression: "gzip"}.Serializer()
	require.NoError(t, err)
	require.Equal(t, persistence.MsgpackCodec.Name, ser.Codec.Name)
	require.Equal(t, persistence.CompressionGzip, ser.Compression)

	_, err = StoreConfig{Codec: "gob", Compression: "brotli"}.Serializer()
	require.Error(t, err)
	_, err = StoreConfig{Codec: "xml"}.Serializer()
	require.Error(t, err)
}

func TestStoreOpen(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		store, err := StoreConfig{Type: StoreMemory, Codec: "gob"}.Open()
		require.NoError(t, err)
		require.IsType(t, &persistence.MemoryRepository{}, store.Repository)
		require.IsType(t, &persistence.MemoryHistoryStore{}, store.History)
		require.Nil(t, store.Closer)
	})

	t.Run("sqlite", func(t *testing.T) {
		dsn := filepath.Join(t.TempDir(), "flowexec.db")
		store, err := StoreConfig{Type: StoreSQLite, DSN: dsn, Codec: "msgpack", Compression: "zstd"}.Open()
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Closer.Close() })
		require.IsType(t, &persistence.SQLHistoryStore{}, store.History)

		ctx := context.Background()
		require.NoError(t, store.History.Append(ctx, persistence.HistoryEvent{ConversationID: "c", Type: persistence.HistoryPaused}))
		events, err := store.History.List(ctx, "c")
		require.NoError(t, err)
		require.Len(t, events, 1)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := StoreConfig{Type: "bolt", Codec: "gob"}.Open()
		require.Error(t, err)
	})
}

func TestNewRuntime(t *testing.T) {
	cfg := &Config{
		Store:  StoreConfig{Type: StoreMemory, Codec: "gob", Compression: "none"},
		Engine: EngineConfig{MaxSteps: 100},
	}
	var buf bytes.Buffer
	logger, err := NewLogger(LogConfig{Level: "debug", Format: "text"}, &buf)
	require.NoError(t, err)

	rt, err := cfg.NewRuntime(logger)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, rt.Close()) })

	require.NoError(t, rt.Executor.RegisterFlow(&api.Flow{ID: "hello", States: []*api.State{
		{ID: "ask", Kind: api.KindView, Transitions: []*api.Transition{{Criteria: api.On("ok"), Target: api.To("done")}}},
		{ID: "done", Kind: api.KindEnd},
	}}))
	ctx := context.Background()
	res, err := rt.Executor.LaunchExecution(ctx, "hello", nil, nil)
	require.NoError(t, err)
	_, err = rt.Executor.ResumeExecution(ctx, res.Key, api.NewLocalExternalContext("ok", nil))
	require.NoError(t, err)

	m := rt.Metrics.Snapshot()
	require.Equal(t, int64(1), m.SessionsStarted)
	require.Equal(t, int64(1), m.SessionsEnded)
	require.Equal(t, int64(1), m.Pauses)
	require.Contains(t, buf.String(), "msg=session_started")
	require.IsType(t, &taskqueue.InMemoryQueue{}, rt.Queue)
	require.NotNil(t, rt.Worker)
}

func TestOpenQueue(t *testing.T) {
	mem := StoreConfig{Type: StoreMemory, Codec: "gob"}
	memStore, err := mem.Open()
	require.NoError(t, err)

	q, err := QueueConfig{}.OpenQueue(memStore, mem)
	require.NoError(t, err)
	require.IsType(t, &taskqueue.InMemoryQueue{}, q)

	_, err = QueueConfig{Type: StoreSQLite}.OpenQueue(memStore, mem)
	require.ErrorContains(t, err, "requires store type")

	lite := StoreConfig{Type: StoreSQLite, DSN: filepath.Join(t.TempDir(), "q.db"), Codec: "gob"}
	liteStore, err := lite.Open()
	require.NoError(t, err)
	t.Cleanup(func() { _ = liteStore.Closer.Close() })

	q, err = QueueConfig{}.OpenQueue(liteStore, lite)
	require.NoError(t, err)
	require.IsType(t, &taskqueue.SQLiteQueue{}, q)

	q, err = QueueConfig{Type: StoreMemory}.OpenQueue(liteStore, lite)
	require.NoError(t, err)
	require.IsType(t, &taskqueue.InMemoryQueue{}, q)
}

func TestRuntimeWorkerDeliversDeferredEvent(t *testing.T) {
	cfg := &Config{
		Store: StoreConfig{Type: StoreSQLite, DSN: filepath.Join(t.TempDir(), "rt.db"), Codec: "gob", Compression: "none"},
		Queue: QueueConfig{Concurrency: 1},
	}
	rt, err := cfg.NewRuntime(nil)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, rt.Close()) })
	require.IsType(t, &taskqueue.SQLiteQueue{}, rt.Queue)

	require.NoError(t, rt.Executor.RegisterFlow(&api.Flow{ID: "wait", States: []*api.State{
		{ID: "idle", Kind: api.KindView, Transitions: []*api.Transition{{Criteria: api.On("timeout"), Target: api.To("gone")}}},
		{ID: "gone", Kind: api.KindEnd},
	}}))
	ctx := context.Background()
	res, err := rt.Executor.LaunchExecution(ctx, "wait", nil, nil)
	require.NoError(t, err)

	require.NoError(t, rt.Worker.EnqueueEvent(ctx, res.Key, "timeout", nil))
	processed, err := rt.Worker.ProcessOne(ctx)
	require.True(t, processed)
	require.NoError(t, err)

	_, err = rt.Executor.ResumeExecution(ctx, res.Key, api.NewLocalExternalContext("timeout", nil))
	require.ErrorIs(t, err, api.ErrNoSuchFlowExecution)
}
