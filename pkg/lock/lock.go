// Package lock provides a named mutual-exclusion primitive scoped by a
// logical key. The Redis implementation gives cross-process exclusion; the
// local implementation serves single-writer deployments and tests.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrLockHeld indicates the named lock is held by someone else.
	ErrLockHeld = errors.New("lock is held")

	// ErrNotAcquired indicates acquisition gave up after retrying.
	ErrNotAcquired = errors.New("failed to acquire lock")
)

// DefaultLockTTL bounds how long a crashed holder can wedge a name.
const DefaultLockTTL = 30 * time.Second

// Locker hands out named locks.
type Locker interface {
	// Acquire blocks (with backoff) until the named lock is held, the
	// context is done, or the retry budget runs out.
	Acquire(ctx context.Context, name string, ttl time.Duration) (*Lock, error)
}

// Lock is one held named lock. Release is idempotent: the underlying
// release runs exactly once no matter how many times it is called, so a
// deferred Release after an explicit one is harmless.
type Lock struct {
	Name string

	mu       sync.Mutex
	released bool
	release  func(ctx context.Context) error
}

func newLock(name string, release func(ctx context.Context) error) *Lock {
	return &Lock{Name: name, release: release}
}

// Release frees the lock. Safe to call more than once.
func (l *Lock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.released {
		return nil
	}
	l.released = true
	return l.release(ctx)
}
