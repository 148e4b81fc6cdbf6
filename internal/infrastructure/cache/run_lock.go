package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/photocatalog/backend/internal/infrastructure/config"
)

// DefaultRunLockKey is used when no key is configured
const DefaultRunLockKey = "inventory-sync:run"

// NewRedisClient creates a Redis client and verifies the connection
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisRunLock is a cross-process mutex around reconciliation runs.
// Only one instance holding the key may run at a time.
type RedisRunLock struct {
	locker *redislock.Client
	key    string
	logger *zap.Logger
}

// NewRedisRunLock creates a run lock on the given client
func NewRedisRunLock(client redislock.RedisClient, key string, logger *zap.Logger) *RedisRunLock {
	if key == "" {
		key = DefaultRunLockKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRunLock{
		locker: redislock.New(client),
		key:    key,
		logger: logger,
	}
}

// Key returns the Redis key guarding runs
func (l *RedisRunLock) Key() string {
	return l.key
}

// TryAcquire obtains the lock without waiting.
// It returns ok=false with a nil error when another holder has the key.
// The returned release func is safe to call once the run ends.
func (l *RedisRunLock) TryAcquire(ctx context.Context, ttl time.Duration) (func(context.Context), bool, error) {
	lock, err := l.locker.Obtain(ctx, l.key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("obtain run lock %s: %w", l.key, err)
	}

	release := func(ctx context.Context) {
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn("Failed to release run lock",
				zap.String("key", l.key),
				zap.Error(err),
			)
		}
	}
	return release, true, nil
}
