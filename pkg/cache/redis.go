package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/school-registry/pkg/config"
)

const pingTimeout = 5 * time.Second

// Options builds client options from configuration.
func Options(cfg config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// NewRedis returns a Redis client that answered a ping.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(Options(cfg))

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", client.Options().Addr, err)
	}
	return client, nil
}

// NewOptionalRedis connects when the catalog cache is enabled. Connection
// failures are logged and yield a nil client so the API runs uncached.
func NewOptionalRedis(ctx context.Context, cfg config.RedisConfig, enabled bool, logger *zap.Logger) *redis.Client {
	if !enabled {
		return nil
	}
	client, err := NewRedis(ctx, cfg)
	if err != nil {
		logger.Warn("catalog cache disabled", zap.Error(err))
		return nil
	}
	return client
}
