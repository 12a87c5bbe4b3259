package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// dequeueScript atomically pops the earliest job whose score is <= now.
var dequeueScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #ids == 0 then
  return false
end
redis.call('ZREM', KEYS[1], ids[1])
local data = redis.call('HGET', KEYS[2], ids[1])
redis.call('HDEL', KEYS[2], ids[1])
return data
`)

// RedisQueue keeps job ids in a sorted set scored by due time and bodies in a hash.
type RedisQueue struct {
	client  redis.UniversalClient
	dueKey  string
	dataKey string
}

// NewRedisQueue creates a queue under prefix.
func NewRedisQueue(client redis.UniversalClient, prefix string) *RedisQueue {
	return &RedisQueue{
		client:  client,
		dueKey:  prefix + ":jobs:due",
		dataKey: prefix + ":jobs:data",
	}
}

// Enqueue stores job and schedules it at runAt.
func (q *RedisQueue) Enqueue(ctx context.Context, job Job, runAt time.Time) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.dataKey, job.ID, body)
		pipe.ZAdd(ctx, q.dueKey, redis.Z{Score: float64(runAt.UnixMilli()), Member: job.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

// Dequeue pops one due job.
func (q *RedisQueue) Dequeue(ctx context.Context, now time.Time) (*Job, error) {
	res, err := dequeueScript.Run(ctx, q.client, []string{q.dueKey, q.dataKey}, strconv.FormatInt(now.UnixMilli(), 10)).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue job: %w", err)
	}
	var job Job
	if err := json.Unmarshal([]byte(res), &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &job, nil
}

// Len returns the number of scheduled jobs.
func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.client.ZCard(ctx, q.dueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return int(n), nil
}
