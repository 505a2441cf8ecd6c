package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/petrijr/flowexec/pkg/api"
)

// MemoryRepository keeps serialized snapshots in an expiring in-process
// cache. Snapshots are stored encoded so that every Load yields a fresh,
// independent copy, as with the durable backends.
type MemoryRepository struct {
	mu     sync.Mutex
	cache  *cache.Cache
	leases map[string]memoryLease
	opts   Options
}

type memoryLease struct {
	owner   string
	expires time.Time
}

// memoryEntry holds every kept snapshot of one execution by snapshot id.
type memoryEntry struct {
	snapshots map[int][]byte
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates a repository expiring executions after
// opts.TTL of inactivity.
func NewMemoryRepository(opts Options) *MemoryRepository {
	ttl := cache.NoExpiration
	cleanup := time.Duration(0)
	if opts.TTL > 0 {
		ttl = opts.TTL
		cleanup = opts.TTL
	}
	return &MemoryRepository{
		cache:  cache.New(ttl, cleanup),
		leases: make(map[string]memoryLease),
		opts:   opts,
	}
}

func (r *MemoryRepository) Save(_ context.Context, s *Snapshot) error {
	data, err := r.opts.Serializer.Marshal(s)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := &memoryEntry{snapshots: make(map[int][]byte)}
	if v, ok := r.cache.Get(s.Key.ExecutionID); ok {
		for id, b := range v.(*memoryEntry).snapshots {
			next.snapshots[id] = b
		}
	}
	next.snapshots[s.Key.SnapshotID] = data
	pruneSnapshots(next.snapshots, r.opts.MaxSnapshots)

	r.cache.Set(s.Key.ExecutionID, next, cache.DefaultExpiration)
	return nil
}

func (r *MemoryRepository) Load(_ context.Context, key api.Key) (*Snapshot, error) {
	v, ok := r.cache.Get(key.ExecutionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", api.ErrNoSuchFlowExecution, key)
	}
	data, ok := v.(*memoryEntry).snapshots[key.SnapshotID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", api.ErrNoSuchFlowExecution, key)
	}
	return r.opts.Serializer.Unmarshal(data)
}

func (r *MemoryRepository) LatestSnapshotID(_ context.Context, executionID string) (int, error) {
	v, ok := r.cache.Get(executionID)
	if !ok {
		return 0, nil
	}
	latest := 0
	for id := range v.(*memoryEntry).snapshots {
		latest = max(latest, id)
	}
	return latest, nil
}

func (r *MemoryRepository) Remove(_ context.Context, executionID string) error {
	r.cache.Delete(executionID)
	return nil
}

func (r *MemoryRepository) TryAcquireLease(_ context.Context, executionID, owner string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, errors.New("ttl must be > 0")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if l, ok := r.leases[executionID]; ok && l.owner != owner && l.expires.After(now) {
		return false, nil
	}
	r.leases[executionID] = memoryLease{owner: owner, expires: now.Add(ttl)}
	return true, nil
}

func (r *MemoryRepository) ReleaseLease(_ context.Context, executionID, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.leases[executionID]; ok && l.owner == owner {
		delete(r.leases, executionID)
	}
	return nil
}

// pruneSnapshots drops the oldest snapshot ids beyond limit.
func pruneSnapshots(snaps map[int][]byte, limit int) {
	if limit <= 0 || len(snaps) <= limit {
		return
	}
	ids := make([]int, 0, len(snaps))
	for id := range snaps {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids[:len(ids)-limit] {
		delete(snaps, id)
	}
}
