package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/flowexec/pkg/api"
)

// repositoryContract exercises behaviour every Repository must share.
func repositoryContract(t *testing.T, repo Repository, executionID string) {
	t.Helper()
	ctx := context.Background()

	_, err := repo.Load(ctx, api.Key{ExecutionID: executionID, SnapshotID: 1})
	require.ErrorIs(t, err, api.ErrNoSuchFlowExecution)
	latest, err := repo.LatestSnapshotID(ctx, executionID)
	require.NoError(t, err)
	require.Zero(t, latest)

	s1 := newTestSnapshot(executionID, 1)
	require.NoError(t, repo.Save(ctx, s1))

	got, err := repo.Load(ctx, s1.Key)
	require.NoError(t, err)
	require.Equal(t, s1.Key, got.Key)
	require.Equal(t, "viewDetails", got.Sessions[1].StateID)

	// Loads are independent copies.
	got.Sessions[1].FlowScope["id"] = 99
	again, err := repo.Load(ctx, s1.Key)
	require.NoError(t, err)
	require.NotEqual(t, 99, again.Sessions[1].FlowScope["id"])

	// Saving the same key replaces it.
	s1.Sessions[1].StateID = "viewPersonList"
	require.NoError(t, repo.Save(ctx, s1))
	got, err = repo.Load(ctx, s1.Key)
	require.NoError(t, err)
	require.Equal(t, "viewPersonList", got.Sessions[1].StateID)

	// A second snapshot of the same execution is kept alongside.
	s2 := newTestSnapshot(executionID, 2)
	require.NoError(t, repo.Save(ctx, s2))
	_, err = repo.Load(ctx, s1.Key)
	require.NoError(t, err)
	_, err = repo.Load(ctx, s2.Key)
	require.NoError(t, err)

	// Re-saving an older snapshot leaves the latest id alone.
	require.NoError(t, repo.Save(ctx, s1))
	latest, err = repo.LatestSnapshotID(ctx, executionID)
	require.NoError(t, err)
	require.Equal(t, 2, latest)

	require.NoError(t, repo.Remove(ctx, executionID))
	_, err = repo.Load(ctx, s2.Key)
	require.ErrorIs(t, err, api.ErrNoSuchFlowExecution)
	latest, err = repo.LatestSnapshotID(ctx, executionID)
	require.NoError(t, err)
	require.Zero(t, latest)
	require.NoError(t, repo.Remove(ctx, executionID), "remove is idempotent")
}

// leaseContract exercises the lease semantics every Repository must share.
func leaseContract(t *testing.T, repo Repository, executionID string) {
	t.Helper()
	ctx := context.Background()

	ok, err := repo.TryAcquireLease(ctx, executionID, "owner-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.TryAcquireLease(ctx, executionID, "owner-b", time.Minute)
	require.NoError(t, err)
	require.False(t, ok, "lease held by another owner")

	ok, err = repo.TryAcquireLease(ctx, executionID, "owner-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok, "lease is re-entrant for its owner")

	require.NoError(t, repo.ReleaseLease(ctx, executionID, "owner-b"), "foreign release is a no-op")
	ok, err = repo.TryAcquireLease(ctx, executionID, "owner-b", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, repo.ReleaseLease(ctx, executionID, "owner-a"))
	ok, err = repo.TryAcquireLease(ctx, executionID, "owner-b", 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	// Expired leases can be taken over.
	time.Sleep(120 * time.Millisecond)
	ok, err = repo.TryAcquireLease(ctx, executionID, "owner-c", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, repo.ReleaseLease(ctx, executionID, "owner-c"))

	_, err = repo.TryAcquireLease(ctx, executionID, "owner-c", 0)
	require.Error(t, err)
}

// pruneContract checks that only the newest MaxSnapshots snapshots stay.
func pruneContract(t *testing.T, repo Repository, executionID string, max int) {
	t.Helper()
	ctx := context.Background()

	for i := 1; i <= max+2; i++ {
		require.NoError(t, repo.Save(ctx, newTestSnapshot(executionID, i)))
	}
	for i := 1; i <= 2; i++ {
		_, err := repo.Load(ctx, api.Key{ExecutionID: executionID, SnapshotID: i})
		require.ErrorIs(t, err, api.ErrNoSuchFlowExecution, "snapshot %d should be pruned", i)
	}
	for i := 3; i <= max+2; i++ {
		_, err := repo.Load(ctx, api.Key{ExecutionID: executionID, SnapshotID: i})
		require.NoError(t, err, "snapshot %d should be kept", i)
	}
}

func TestMemoryRepository(t *testing.T) {
	repo := NewMemoryRepository(Options{Serializer: DefaultSerializer()})
	repositoryContract(t, repo, "mem-1")
	leaseContract(t, repo, "mem-lease")
}

func TestMemoryRepository_PrunesSnapshots(t *testing.T) {
	repo := NewMemoryRepository(Options{MaxSnapshots: 3, Serializer: DefaultSerializer()})
	pruneContract(t, repo, "mem-prune", 3)
}

func TestMemoryRepository_ExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(Options{TTL: 50 * time.Millisecond, Serializer: DefaultSerializer()})

	s := newTestSnapshot("mem-ttl", 1)
	require.NoError(t, repo.Save(ctx, s))
	_, err := repo.Load(ctx, s.Key)
	require.NoError(t, err)

	time.Sleep(120 * time.Millisecond)
	_, err = repo.Load(ctx, s.Key)
	require.ErrorIs(t, err, api.ErrNoSuchFlowExecution)
}

func TestPruneSnapshots(t *testing.T) {
	snaps := map[int][]byte{1: nil, 2: nil, 5: nil, 7: nil}
	pruneSnapshots(snaps, 2)
	require.Len(t, snaps, 2)
	require.Contains(t, snaps, 5)
	require.Contains(t, snaps, 7)

	pruneSnapshots(snaps, 0)
	require.Len(t, snaps, 2)
}
