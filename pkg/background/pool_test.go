package background

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_RunsSubmittedWork(t *testing.T) {
	ctx := context.Background()
	pool := NewPool(slog.Default(), 2)

	var ran atomic.Int32

	for i := 0; i < 5; i++ {
		accepted := pool.Submit(ctx, "count", func(ctx context.Context) {
			ran.Add(1)
		})
		assert.True(t, accepted)
	}

	require.NoError(t, pool.Shutdown(ctx))
	assert.Equal(t, int32(5), ran.Load())
}

func TestPool_RecoversFromPanic(t *testing.T) {
	ctx := context.Background()
	pool := NewPool(slog.Default(), 1)

	accepted := pool.Submit(ctx, "boom", func(ctx context.Context) {
		panic("boom")
	})
	assert.True(t, accepted)

	require.NoError(t, pool.Shutdown(ctx))
}

func TestPool_RejectsAfterShutdown(t *testing.T) {
	ctx := context.Background()
	pool := NewPool(slog.Default(), 1)

	require.NoError(t, pool.Shutdown(ctx))

	accepted := pool.Submit(ctx, "late", func(ctx context.Context) {})
	assert.False(t, accepted)
}

func TestPool_ShutdownHonorsDeadline(t *testing.T) {
	pool := NewPool(slog.Default(), 1)

	release := make(chan struct{})
	pool.Submit(context.Background(), "slow", func(ctx context.Context) {
		<-release
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := pool.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
}
