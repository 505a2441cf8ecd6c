package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/petrijr/flowexec/internal/testutil"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// Every connection to ":memory:" is its own database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLiteRepository(t *testing.T) {
	repo, err := NewSQLiteRepository(openSQLite(t), Options{Serializer: DefaultSerializer()})
	require.NoError(t, err)
	repositoryContract(t, repo, "sqlite-1")
	leaseContract(t, repo, "sqlite-lease")
}

func TestSQLiteRepository_PrunesSnapshots(t *testing.T) {
	repo, err := NewSQLiteRepository(openSQLite(t), Options{MaxSnapshots: 2, Serializer: DefaultSerializer()})
	require.NoError(t, err)
	pruneContract(t, repo, "sqlite-prune", 2)
}

func TestSQLiteRepository_ExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	repo, err := NewSQLiteRepository(openSQLite(t), Options{
		TTL:        50 * time.Millisecond,
		Serializer: Serializer{Codec: MsgpackCodec, Compression: CompressionZstd},
	})
	require.NoError(t, err)

	s := newTestSnapshot("sqlite-ttl", 1)
	require.NoError(t, repo.Save(ctx, s))
	_, err = repo.Load(ctx, s.Key)
	require.NoError(t, err)

	time.Sleep(120 * time.Millisecond)
	_, err = repo.Load(ctx, s.Key)
	require.Error(t, err)
}

func TestSQLiteRepository_SchemaIsReentrant(t *testing.T) {
	db := openSQLite(t)
	_, err := NewSQLiteRepository(db, Options{})
	require.NoError(t, err)
	_, err = NewSQLiteRepository(db, Options{})
	require.NoError(t, err)
}

func TestPostgresRepository(t *testing.T) {
	dsn := testutil.PostgresDSN(t)
	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo, err := NewPostgresRepository(db, Options{MaxSnapshots: 2, Serializer: DefaultSerializer()})
	require.NoError(t, err)
	repositoryContract(t, repo, "pg-1")
	leaseContract(t, repo, "pg-lease")
	pruneContract(t, repo, "pg-prune", 2)
}

func TestDialect_Rebind(t *testing.T) {
	q := "SELECT a FROM t WHERE b = ? AND c = ?"
	require.Equal(t, q, SQLite.rebind(q))
	require.Equal(t, "SELECT a FROM t WHERE b = $1 AND c = $2", Postgres.rebind(q))
}
