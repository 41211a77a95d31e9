package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/pms/channelsync/internal/domain/shared"
	"github.com/redis/go-redis/v9"
)

const defaultDeliveryKeyPrefix = "channel:delivery:"

// RedisDeliveryStore remembers webhook delivery keys in Redis so that every
// service instance rejects the same redelivery
type RedisDeliveryStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisDeliveryStore connects to Redis and verifies the connection
func NewRedisDeliveryStore(ctx context.Context, opts *redis.Options) (*RedisDeliveryStore, error) {
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisDeliveryStoreWithClient(client, ""), nil
}

// NewRedisDeliveryStoreWithClient wraps an existing client
func NewRedisDeliveryStoreWithClient(client *redis.Client, keyPrefix string) *RedisDeliveryStore {
	if keyPrefix == "" {
		keyPrefix = defaultDeliveryKeyPrefix
	}
	return &RedisDeliveryStore{client: client, keyPrefix: keyPrefix}
}

// MarkProcessed records key with SETNX; false means the key was already seen
func (s *RedisDeliveryStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.keyPrefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record delivery: %w", err)
	}
	return ok, nil
}

// IsProcessed checks whether key was recorded
func (s *RedisDeliveryStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.keyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check delivery: %w", err)
	}
	return n > 0, nil
}

// Forget removes key
func (s *RedisDeliveryStore) Forget(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to forget delivery: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (s *RedisDeliveryStore) Close() error {
	return s.client.Close()
}

var _ shared.IdempotencyStore = (*RedisDeliveryStore)(nil)
