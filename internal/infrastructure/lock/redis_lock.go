// Package lock provides the run lock that keeps import runs from overlapping.
package lock

import (
	"context"
	"fmt"
	"time"

	importapp "github.com/erp/importer/internal/application/import"
	"github.com/erp/importer/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds the caller's token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock implements RunLock using Redis.
// This is suitable for deployments where several processes share one target database.
type RedisLock struct {
	client    redis.UniversalClient
	keyPrefix string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisLock creates a Redis-based lock and checks the connection
func NewRedisLock(cfg RedisConfig) (*RedisLock, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisLockWithClient(client, ""), nil
}

// NewRedisLockWithClient creates a lock over an existing Redis client
func NewRedisLockWithClient(client redis.UniversalClient, keyPrefix string) *RedisLock {
	if keyPrefix == "" {
		keyPrefix = "importer:lock:"
	}
	return &RedisLock{client: client, keyPrefix: keyPrefix}
}

// TryAcquire takes key for ttl using SET NX PX.
// It returns shared.ErrConcurrentRun when the key is already held.
func (l *RedisLock) TryAcquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	fullKey := l.keyPrefix + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, shared.ErrConcurrentRun
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{fullKey}, token).Err(); err != nil {
			return fmt.Errorf("failed to release lock %s: %w", key, err)
		}
		return nil
	}, nil
}

// Ping checks that Redis answers
func (l *RedisLock) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (l *RedisLock) Close() error {
	return l.client.Close()
}

var _ importapp.RunLock = (*RedisLock)(nil)
