package cache

import (
	"context"
	"fmt"

	"github.com/pms/channelsync/internal/domain/shared"
	"github.com/pms/channelsync/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewDeliveryStore returns a Redis-backed store, falling back to memory when
// Redis is unreachable unless strict is set
func NewDeliveryStore(ctx context.Context, cfg config.RedisConfig, strict bool, logger *zap.Logger) (shared.IdempotencyStore, error) {
	store, err := NewRedisDeliveryStore(ctx, &redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err == nil {
		logger.Info("using Redis webhook delivery store", zap.String("addr", cfg.Addr()))
		return store, nil
	}
	if strict {
		return nil, fmt.Errorf("redis required for webhook de-duplication: %w", err)
	}

	logger.Warn("Redis unavailable, falling back to in-memory webhook delivery store; "+
		"redeliveries across instances will not be de-duplicated",
		zap.Error(err),
	)
	return NewMemoryDeliveryStore(0), nil
}
