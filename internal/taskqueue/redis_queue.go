package taskqueue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue implements the Queue interface using a Redis sorted set:
//
//	<prefix>tasks => ZSET of gob-encoded tasks scored by NotBefore (µs)
//
// Tasks with the same NotBefore microsecond are claimed in member order.
type RedisQueue struct {
	client       *redis.Client
	key          string
	pollInterval time.Duration
	logger       *slog.Logger
}

// popDue removes and returns the first member scored at or below ARGV[1].
var popDue = redis.NewScript(`
local items = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #items == 0 then
	return false
end
redis.call('ZREM', KEYS[1], items[1])
return items[1]
`)

// NewRedisQueue constructs a Redis-backed Queue.
// prefix is optional but recommended (e.g. "flowexec:").
func NewRedisQueue(client *redis.Client, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "flowexec:"
	}
	return &RedisQueue{
		client:       client,
		key:          prefix + "tasks",
		pollInterval: 20 * time.Millisecond,
		logger:       slog.Default(),
	}
}

// Ensure RedisQueue implements Queue.
var _ Queue = (*RedisQueue)(nil)

// Enqueue adds the task to the sorted set (ZADD).
func (q *RedisQueue) Enqueue(ctx context.Context, t Task) error {
	prepare(&t, time.Now())
	data, err := EncodeTask(t)
	if err != nil {
		return err
	}
	return q.client.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(t.NotBefore.UnixMicro()),
		Member: data,
	}).Err()
}

// Dequeue polls for a due task until one is claimed or ctx is cancelled.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		res, err := popDue.Run(ctx, q.client, []string{q.key}, time.Now().UnixMicro()).Text()
		switch {
		case err == nil:
			return DecodeTask([]byte(res))
		case !errors.Is(err, redis.Nil):
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.pollInterval):
		}
	}
}

// Len returns the number of tasks queued (ZCARD).
func (q *RedisQueue) Len() int {
	n, err := q.client.ZCard(context.Background(), q.key).Result()
	if err != nil {
		q.logger.Warn("task_queue_len_failed", "queue", q.key, "error", err)
		return 0
	}
	return int(n)
}
