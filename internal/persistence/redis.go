package persistence

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fluxdesk/conversation-service/internal/config"
)

// Redis holds the client backing the job queue and the channel locks.
type Redis struct {
	Client *redis.Client
	Prefix string
}

// NewRedis builds the client. A disabled configuration yields a Redis with a
// nil client. An unreachable server is fatal: the queue and the locks would
// silently stop working.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*Redis, error) {
	if !cfg.Enabled {
		logger.Warn("REDIS_ENABLED=false; using in-process queue and locks")
		return &Redis{Prefix: cfg.KeyPrefix}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	r := &Redis{Client: client, Prefix: cfg.KeyPrefix}
	if err := r.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("reach redis at %s: %w", cfg.Addr, err)
	}

	logger.Info("connected to redis", zap.String("addr", cfg.Addr), zap.String("key_prefix", cfg.KeyPrefix))
	return r, nil
}

// Close closes the client.
func (r *Redis) Close() {
	if r.Enabled() {
		_ = r.Client.Close()
	}
}

// Ping checks connectivity within a bounded time.
func (r *Redis) Ping(ctx context.Context) error {
	if !r.Enabled() {
		return fmt.Errorf("redis: %w", ErrNotConfigured)
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return r.Client.Ping(ctx).Err()
}

// Enabled reports whether a client was configured.
func (r *Redis) Enabled() bool {
	return r != nil && r.Client != nil
}
