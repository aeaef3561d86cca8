package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/archonops/supervisor/internal/model"
)

// RedisQueue backs the queue namespace with a Redis list: RPUSH to enqueue
// (append at the tail) and LPOP to dequeue (pop the head), giving FIFO
// ordering with atomic single-key operations (spec.md §6 queue namespace,
// §7 invariant "Queue list: atomic push/pop primitives of the store").
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue constructs a queue bound to a single Redis list key.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Enqueue(ctx context.Context, t *model.Task) error {
	b, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	return q.client.RPush(ctx, q.key, b).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*model.Task, error) {
	val, err := q.client.LPop(ctx, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lpop queue: %w", err)
	}
	var t model.Task
	if err := json.Unmarshal([]byte(val), &t); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}
	return &t, nil
}

func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("llen queue: %w", err)
	}
	return int(n), nil
}
