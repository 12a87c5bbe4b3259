package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseQueue(t *testing.T, q Queue) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	later, err := NewJob(JobWebhook, 1, map[string]int64{"webhook_id": 2})
	require.NoError(t, err)
	soon, err := NewJob(JobSendMessage, 1, map[string]int64{"message_id": 3})
	require.NoError(t, err)

	require.NoError(t, q.Enqueue(ctx, later, now.Add(time.Minute)))
	require.NoError(t, q.Enqueue(ctx, soon, now.Add(time.Second)))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	job, err := q.Dequeue(ctx, now)
	require.NoError(t, err)
	assert.Nil(t, job)

	job, err = q.Dequeue(ctx, now.Add(2*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, soon.ID, job.ID)

	var payload map[string]int64
	require.NoError(t, job.Decode(&payload))
	assert.Equal(t, int64(3), payload["message_id"])

	job, err = q.Dequeue(ctx, now.Add(2*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, later.ID, job.ID)
	assert.Equal(t, JobWebhook, job.Kind)

	job, err = q.Dequeue(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestMemoryQueue(t *testing.T) {
	exerciseQueue(t, NewMemoryQueue())
}

func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())
	return client
}

func TestRedisQueue(t *testing.T) {
	client := redisClient(t)
	exerciseQueue(t, NewRedisQueue(client, "test-"+uuid.NewString()))
}

func TestMemoryLocker(t *testing.T) {
	l := NewMemoryLocker()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	l.clock = func() time.Time { return now }
	ctx := context.Background()

	unlock, ok, err := l.TryLock(ctx, "channel:1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, "channel:1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = l.TryLock(ctx, "channel:2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	unlock()
	_, ok, err = l.TryLock(ctx, "channel:1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, err = l.TryLock(ctx, "channel:1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired lock is reclaimed")
}

func TestRedisLocker(t *testing.T) {
	client := redisClient(t)
	l := NewRedisLocker(client, "test-"+uuid.NewString())
	ctx := context.Background()

	unlock, ok, err := l.TryLock(ctx, "channel:1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	_, ok, err = l.TryLock(ctx, "channel:1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	unlock()
	_, ok, err = l.TryLock(ctx, "channel:1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
