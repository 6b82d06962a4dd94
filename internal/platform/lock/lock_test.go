package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func lockers(t *testing.T) map[string]Locker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return map[string]Locker{
		"memory": NewMemory(),
		"redis":  NewRedis(client),
	}
}

func TestTryAcquireExclusive(t *testing.T) {
	for name, locker := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			lease, err := locker.TryAcquire(ctx, "k", time.Minute)
			require.NoError(t, err)

			_, err = locker.TryAcquire(ctx, "k", time.Minute)
			require.ErrorIs(t, err, ErrHeld)

			other, err := locker.TryAcquire(ctx, "other", time.Minute)
			require.NoError(t, err)
			require.NoError(t, other.Release(ctx))

			require.NoError(t, lease.Release(ctx))
			require.NoError(t, lease.Release(ctx))

			again, err := locker.TryAcquire(ctx, "k", time.Minute)
			require.NoError(t, err)
			require.NoError(t, again.Release(ctx))
		})
	}
}

func TestAcquireWaitsForRelease(t *testing.T) {
	for name, locker := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			lease, err := locker.TryAcquire(ctx, "k", time.Minute)
			require.NoError(t, err)

			go func() {
				time.Sleep(50 * time.Millisecond)
				_ = lease.Release(ctx)
			}()

			waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			next, err := locker.Acquire(waitCtx, "k", time.Minute)
			require.NoError(t, err)
			require.NoError(t, next.Release(ctx))
		})
	}
}

func TestAcquireHonoursContext(t *testing.T) {
	locker := NewMemory()
	ctx := context.Background()
	_, err := locker.TryAcquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 60*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(waitCtx, "k", time.Minute)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStaleLeaseCannotReleaseNewOwner(t *testing.T) {
	locker := NewMemory()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	locker.now = func() time.Time { return now }
	ctx := context.Background()

	stale, err := locker.TryAcquire(ctx, "k", time.Second)
	require.NoError(t, err)
	now = now.Add(2 * time.Second)

	fresh, err := locker.TryAcquire(ctx, "k", time.Second)
	require.NoError(t, err)
	require.NoError(t, stale.Release(ctx))

	_, err = locker.TryAcquire(ctx, "k", time.Second)
	require.ErrorIs(t, err, ErrHeld)
	require.NoError(t, fresh.Release(ctx))
}
