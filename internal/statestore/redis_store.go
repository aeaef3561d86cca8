package statestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/archonops/supervisor/internal/model"
)

// RedisStore backs the state namespace with a single Redis string key
// holding the full JSON snapshot (spec.md §6 "state namespace (holds one
// key, the supervisor state)").
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore constructs a store bound to a single Redis key.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) Load(ctx context.Context) (*model.SupervisorState, error) {
	val, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get state key: %w", err)
	}
	return unmarshalState(val)
}

func (s *RedisStore) Save(ctx context.Context, state *model.SupervisorState) error {
	b, err := marshalState(state)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, b, 0).Err(); err != nil {
		return fmt.Errorf("set state key: %w", err)
	}
	return nil
}

func (s *RedisStore) Exists(ctx context.Context) (bool, error) {
	n, err := s.client.Exists(ctx, s.key).Result()
	if err != nil {
		return false, fmt.Errorf("exists state key: %w", err)
	}
	return n > 0, nil
}
