package locker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLocker_AcquireAndRelease(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()

	lock, err := l.Acquire(ctx, "queue", "wf-1", time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "queue", "wf-1", time.Minute)
	assert.ErrorIs(t, err, ErrNotAcquired)

	// A different id in the same class is independent.
	other, err := l.Acquire(ctx, "queue", "wf-2", time.Minute)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lock.Release(ctx))

	reacquired, err := l.Acquire(ctx, "queue", "wf-1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, reacquired.Release(ctx))
}

func TestMemoryLocker_ReleaseIdempotent(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()

	lock, err := l.Acquire(ctx, "queue", "wf-1", time.Minute)
	require.NoError(t, err)

	require.NoError(t, lock.Release(ctx))

	// A second release must not free a lock acquired in between.
	held, err := l.Acquire(ctx, "queue", "wf-1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, lock.Release(ctx))

	_, err = l.Acquire(ctx, "queue", "wf-1", time.Minute)
	assert.ErrorIs(t, err, ErrNotAcquired)

	require.NoError(t, held.Release(ctx))
}
