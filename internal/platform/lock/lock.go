// Package lock provides short-lived named mutexes shared by every instance of the service.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrHeld indicates another holder owns the lock.
var ErrHeld = errors.New("lock: held by another owner")

// Lease is an acquired lock. Release is safe to call more than once.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker hands out leases on keys. Leases expire after ttl even if never released.
type Locker interface {
	// TryAcquire returns ErrHeld immediately when the key is taken.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
	// Acquire retries until the key is free or ctx is done.
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

const retryInterval = 25 * time.Millisecond

func acquireLoop(ctx context.Context, try func() (Lease, error)) (Lease, error) {
	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()
	for {
		lease, err := try()
		if !errors.Is(err, ErrHeld) {
			return lease, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
