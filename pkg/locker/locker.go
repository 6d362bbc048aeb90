// Package locker provides advisory locks serializing per-workflow run
// promotion across service instances.
package locker

import (
	"context"
	"errors"
	"time"
)

// ErrNotAcquired is returned when the lock is currently held elsewhere.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker hands out scoped advisory locks. The class separates unrelated lock
// namespaces sharing one backend.
type Locker interface {
	Acquire(ctx context.Context, class, id string, ttl time.Duration) (Lock, error)
}

// Lock is one held advisory lock. Release is idempotent and only removes
// the lock if this holder still owns it.
type Lock interface {
	Release(ctx context.Context) error
}
