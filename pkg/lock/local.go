package lock

import (
	"context"
	"sync"
	"time"
)

// LocalLocker implements Locker inside a single process. Suitable for
// deployments with one writer and for tests; it ignores TTLs because a
// process that dies takes its locks with it.
type LocalLocker struct {
	mu    sync.Mutex
	names map[string]chan struct{}
}

// NewLocalLocker creates an in-process named locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{names: make(map[string]chan struct{})}
}

func (l *LocalLocker) semaphore(name string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	sem, ok := l.names[name]
	if !ok {
		sem = make(chan struct{}, 1)
		l.names[name] = sem
	}
	return sem
}

// Acquire blocks until the named lock is free or the context is done.
func (l *LocalLocker) Acquire(ctx context.Context, name string, _ time.Duration) (*Lock, error) {
	sem := l.semaphore(name)

	select {
	case sem <- struct{}{}:
		return newLock(name, func(context.Context) error {
			<-sem
			return nil
		}), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

var _ Locker = (*LocalLocker)(nil)
