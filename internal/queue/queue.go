// Package queue provides the Redis-backed dispatch queue and the worker
// pool that drains it. Each notification gets exactly one delivery
// attempt; there is no delayed queue and no dead letter queue.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/extra/redisotel/v8"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Queue holds notification IDs awaiting dispatch.
type Queue interface {
	// Enqueue adds a notification to the pending queue.
	Enqueue(ctx context.Context, id uuid.UUID, priority int) error

	// Dequeue returns up to limit notification IDs in priority order
	// without removing them; callers remove after processing.
	Dequeue(ctx context.Context, limit int) ([]uuid.UUID, error)

	// Remove deletes a notification from the queue and drops its lock.
	Remove(ctx context.Context, id uuid.UUID) error

	// AcquireLock claims a notification for one worker.
	AcquireLock(ctx context.Context, id uuid.UUID, workerID string, ttl time.Duration) (bool, error)

	// ReleaseLock releases a claim if still held by the worker.
	ReleaseLock(ctx context.Context, id uuid.UUID, workerID string) error

	// Depth returns the number of pending notifications.
	Depth(ctx context.Context) (int64, error)

	// Close closes the queue connection.
	Close() error
}

const (
	keyPending    = "sendrelay:queue:pending"
	keyLockPrefix = "sendrelay:lock:"
)

// RedisQueue implements Queue on a Redis sorted set.
type RedisQueue struct {
	client *redis.Client
}

// NewRedisQueue connects to Redis and verifies the connection.
// URL format: redis://[:password@]host:port[/db]
func NewRedisQueue(redisURL string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	client.AddHook(redisotel.NewTracingHook())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisQueue{client: client}, nil
}

// NewRedisQueueFromClient wraps an existing client.
func NewRedisQueueFromClient(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

// scoreFor orders the pending set: higher priority first, FIFO within a
// priority. Priority dominates the timestamp term (~1.7e18 ns), and
// subtracting the timestamp makes older entries score higher.
func scoreFor(priority int, now time.Time) float64 {
	return float64(priority)*1e19 - float64(now.UnixNano())
}

// Enqueue adds a notification to the pending queue.
func (q *RedisQueue) Enqueue(ctx context.Context, id uuid.UUID, priority int) error {
	err := q.client.ZAdd(ctx, keyPending, &redis.Z{
		Score:  scoreFor(priority, time.Now()),
		Member: id.String(),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}
	return nil
}

// Dequeue returns up to limit notification IDs, highest score first.
func (q *RedisQueue) Dequeue(ctx context.Context, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		return nil, nil
	}

	results, err := q.client.ZRevRange(ctx, keyPending, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue notifications: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(results))
	for _, r := range results {
		id, err := uuid.Parse(r)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Remove deletes a notification from the queue and drops its lock.
func (q *RedisQueue) Remove(ctx context.Context, id uuid.UUID) error {
	pipe := q.client.Pipeline()
	pipe.ZRem(ctx, keyPending, id.String())
	pipe.Del(ctx, keyLockPrefix+id.String())

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove notification: %w", err)
	}
	return nil
}

// AcquireLock claims a notification via SET NX EX.
func (q *RedisQueue) AcquireLock(ctx context.Context, id uuid.UUID, workerID string, ttl time.Duration) (bool, error) {
	ok, err := q.client.SetNX(ctx, keyLockPrefix+id.String(), workerID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	return ok, nil
}

// ReleaseLock releases a claim only if still held by the worker.
func (q *RedisQueue) ReleaseLock(ctx context.Context, id uuid.UUID, workerID string) error {
	// Atomic check-and-delete.
	script := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)

	_, err := script.Run(ctx, q.client, []string{keyLockPrefix + id.String()}, workerID).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Depth returns the number of pending notifications.
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	n, err := q.client.ZCard(ctx, keyPending).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue depth: %w", err)
	}
	return n, nil
}

// Close closes the Redis connection.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
