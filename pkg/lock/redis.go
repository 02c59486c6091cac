package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/graceway/engagement-engine/pkg/common"
)

const lockKeyPrefix = "engagement:lock:"

// RedisLocker implements Locker with SET NX PX. The value is a random
// token so a holder can only release its own acquisition; a lock orphaned
// by a crash frees itself when the TTL lapses.
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker creates a Redis-backed named locker.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func makeLockKey(name string) string {
	return lockKeyPrefix + name
}

// Acquire tries SET NX with exponential backoff until the lock is won, the
// context is canceled, or the retry budget is exhausted.
func (r *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lock, error) {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}

	key := makeLockKey(name)
	token := common.NewID()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxElapsedTime = ttl

	err := backoff.Retry(func() error {
		ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to acquire lock %q: %w", name, err))
		}
		if !ok {
			return ErrLockHeld
		}
		return nil
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		if err == ErrLockHeld {
			return nil, fmt.Errorf("%w: %q", ErrNotAcquired, name)
		}
		return nil, err
	}

	logrus.Debugf("acquired lock %q", name)
	return newLock(name, func(ctx context.Context) error {
		return r.releaseToken(ctx, key, token)
	}), nil
}

// releaseToken deletes the key only when it still holds our token, so an
// expired-and-reacquired lock is never released out from under the new
// holder.
func (r *RedisLocker) releaseToken(ctx context.Context, key, token string) error {
	held, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil // already expired
	}
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if held != token {
		logrus.Warnf("lock %s expired and was reacquired elsewhere, not releasing", key)
		return nil
	}

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	logrus.Debugf("released lock %q", key)
	return nil
}

var _ Locker = (*RedisLocker)(nil)
