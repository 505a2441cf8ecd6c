package persistence

import (
	"context"
	"time"

	"github.com/petrijr/flowexec/pkg/api"
)

// Repository stores paused flow executions between requests.
//
// Expiry of abandoned executions is the repository's job: every backend
// drops snapshots older than its TTL.
type Repository interface {
	// Save stores s under s.Key. Saving an existing key replaces it.
	Save(ctx context.Context, s *Snapshot) error
	// Load returns the snapshot stored under key, or
	// api.ErrNoSuchFlowExecution.
	Load(ctx context.Context, key api.Key) (*Snapshot, error)
	// LatestSnapshotID returns the highest snapshot id stored for the
	// execution, or 0 when it has none.
	LatestSnapshotID(ctx context.Context, executionID string) (int, error)
	// Remove deletes every snapshot of the execution. It is idempotent.
	Remove(ctx context.Context, executionID string) error

	// TryAcquireLease attempts to acquire (or re-acquire) the lease on an
	// execution. If another owner holds an unexpired lease it returns
	// acquired=false, err=nil. A lease held by the same owner is re-entrant.
	TryAcquireLease(ctx context.Context, executionID, owner string, ttl time.Duration) (acquired bool, err error)
	// ReleaseLease releases a lease if it is owned by owner. It is idempotent.
	ReleaseLease(ctx context.Context, executionID, owner string) error
}

// Options configure repository retention.
type Options struct {
	// TTL expires snapshots not touched for this long; 0 keeps them forever.
	TTL time.Duration
	// MaxSnapshots keeps at most this many snapshots per execution, newest
	// first; 0 means unlimited.
	MaxSnapshots int
	Serializer   Serializer
}
