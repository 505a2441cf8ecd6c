package persistence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/flowexec/pkg/api"
)

// RedisRepository stores snapshots in Redis using the key structure:
//
//	<prefix>snap:<execution>:<snapshot>  => serialized snapshot (TTL)
//	<prefix>idx:<execution>              => ZSET of snapshot ids (TTL)
//	<prefix>lease:<execution>            => lease owner (PX ttl)
type RedisRepository struct {
	client *redis.Client
	prefix string
	opts   Options
}

var _ Repository = (*RedisRepository)(nil)

// NewRedisRepository creates a RedisRepository. prefix is optional but
// recommended (e.g. "flowexec:").
func NewRedisRepository(client *redis.Client, prefix string, opts Options) *RedisRepository {
	if prefix == "" {
		prefix = "flowexec:"
	}
	return &RedisRepository{client: client, prefix: prefix, opts: opts}
}

func (r *RedisRepository) keySnapshot(executionID string, snapshotID int) string {
	return r.prefix + "snap:" + executionID + ":" + strconv.Itoa(snapshotID)
}

func (r *RedisRepository) keyIndex(executionID string) string {
	return r.prefix + "idx:" + executionID
}

func (r *RedisRepository) keyLease(executionID string) string {
	return r.prefix + "lease:" + executionID
}

func (r *RedisRepository) Save(ctx context.Context, s *Snapshot) error {
	data, err := r.opts.Serializer.Marshal(s)
	if err != nil {
		return err
	}
	id := s.Key.ExecutionID
	idx := r.keyIndex(id)

	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.keySnapshot(id, s.Key.SnapshotID), data, r.opts.TTL)
		p.ZAdd(ctx, idx, redis.Z{Score: float64(s.Key.SnapshotID), Member: s.Key.SnapshotID})
		if r.opts.TTL > 0 {
			p.PExpire(ctx, idx, r.opts.TTL)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if r.opts.MaxSnapshots > 0 {
		cutoff := strconv.Itoa(s.Key.SnapshotID - r.opts.MaxSnapshots)
		stale, err := r.client.ZRangeByScore(ctx, idx, &redis.ZRangeBy{Min: "-inf", Max: cutoff}).Result()
		if err != nil {
			return err
		}
		if len(stale) > 0 {
			keys := make([]string, 0, len(stale))
			for _, m := range stale {
				n, _ := strconv.Atoi(m)
				keys = append(keys, r.keySnapshot(id, n))
			}
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
			if err := r.client.ZRemRangeByScore(ctx, idx, "-inf", cutoff).Err(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *RedisRepository) Load(ctx context.Context, key api.Key) (*Snapshot, error) {
	data, err := r.client.Get(ctx, r.keySnapshot(key.ExecutionID, key.SnapshotID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", api.ErrNoSuchFlowExecution, key)
		}
		return nil, err
	}
	return r.opts.Serializer.Unmarshal(data)
}

func (r *RedisRepository) LatestSnapshotID(ctx context.Context, executionID string) (int, error) {
	top, err := r.client.ZRevRangeWithScores(ctx, r.keyIndex(executionID), 0, 0).Result()
	if err != nil {
		return 0, err
	}
	if len(top) == 0 {
		return 0, nil
	}
	return int(top[0].Score), nil
}

func (r *RedisRepository) Remove(ctx context.Context, executionID string) error {
	idx := r.keyIndex(executionID)
	ids, err := r.client.ZRange(ctx, idx, 0, -1).Result()
	if err != nil {
		return err
	}
	keys := []string{idx}
	for _, m := range ids {
		n, _ := strconv.Atoi(m)
		keys = append(keys, r.keySnapshot(executionID, n))
	}
	return r.client.Del(ctx, keys...).Err()
}

const (
	// Lua script for acquiring a lease. Returns 1 if acquired, 0 otherwise.
	redisLeaseAcquireLua = `
local key = KEYS[1]
local owner = ARGV[1]
local ttlms = tonumber(ARGV[2])

local cur = redis.call('GET', key)
if not cur then
	redis.call('PSETEX', key, ttlms, owner)
	return 1
end
if cur == owner then
	redis.call('PEXPIRE', key, ttlms)
	return 1
end
return 0
`

	// Lua script for releasing a lease. Returns 1 if released, 0 otherwise.
	redisLeaseReleaseLua = `
local key = KEYS[1]
local owner = ARGV[1]

local cur = redis.call('GET', key)
if cur == owner then
	redis.call('DEL', key)
	return 1
end
return 0
`
)

func (r *RedisRepository) TryAcquireLease(ctx context.Context, executionID, owner string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, errors.New("ttl must be > 0")
	}
	n, err := r.client.Eval(ctx, redisLeaseAcquireLua, []string{r.keyLease(executionID)}, owner, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *RedisRepository) ReleaseLease(ctx context.Context, executionID, owner string) error {
	return r.client.Eval(ctx, redisLeaseReleaseLua, []string{r.keyLease(executionID)}, owner).Err()
}
