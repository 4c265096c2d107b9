package rotation

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Cursors expire if a workflow stops assigning for a while; a fresh rotation
// after that is acceptable.
const cursorTTL = 30 * 24 * time.Hour

// RedisStore keeps rotation cursors in Redis so rotation state survives
// process restarts and is shared across workers.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Next(ctx context.Context, key string, size int) (int, error) {
	if size <= 0 {
		return 0, fmt.Errorf("rotation size must be positive, got %d", size)
	}

	counter, err := s.client.Incr(ctx, s.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to advance rotation cursor: %w", err)
	}

	err = s.client.Expire(ctx, s.key(key), cursorTTL).Err()
	if err != nil {
		return 0, fmt.Errorf("failed to refresh rotation cursor ttl: %w", err)
	}

	// INCR starts at 1; the first assignment goes to index 0.
	return int((counter - 1) % int64(size)), nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	err := s.client.Del(ctx, s.key(key)).Err()
	if err != nil {
		return fmt.Errorf("failed to reset rotation cursor: %w", err)
	}

	return nil
}

func (s *RedisStore) key(key string) string {
	return "flowpilot:rotation:" + key
}
