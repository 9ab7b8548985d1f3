package workers

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/GeorgeAndreouGA/libero-sub000/pkg/logger"
)

// Locker elects a single sweep runner across service instances. Sweeps are
// idempotent, so a lost lock only costs duplicate reads, never duplicate
// side effects; the lock exists to avoid wasted work, not for correctness.
type Locker interface {
	// Acquire takes the named lock for ttl. Returns false when another
	// instance holds it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release drops the lock early.
	Release(ctx context.Context, key string) error
}

type redisLocker struct {
	client *redis.Client
	log    *logger.Logger
}

// NewRedisLocker creates a Redis-backed Locker.
func NewRedisLocker(client *redis.Client, log *logger.Logger) Locker {
	return &redisLocker{client: client, log: log}
}

func (l *redisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (l *redisLocker) Release(ctx context.Context, key string) error {
	return l.client.Del(ctx, key).Err()
}

// NoopLocker always grants the lock. Used for single-instance deployments
// and tests.
type NoopLocker struct{}

func (NoopLocker) Acquire(context.Context, string, time.Duration) (bool, error) { return true, nil }
func (NoopLocker) Release(context.Context, string) error                        { return nil }
