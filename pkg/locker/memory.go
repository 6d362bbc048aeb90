package locker

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker implements Locker inside one process, matching the file
// persistence backend for local development and tests. TTLs are ignored;
// locks live until released.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]struct{})}
}

func (l *MemoryLocker) Acquire(ctx context.Context, class, id string, _ time.Duration) (Lock, error) {
	key := class + ":" + id

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, taken := l.held[key]; taken {
		return nil, ErrNotAcquired
	}

	l.held[key] = struct{}{}

	return &memoryLock{locker: l, key: key}, nil
}

type memoryLock struct {
	locker *MemoryLocker
	key    string
	once   sync.Once
}

func (l *memoryLock) Release(_ context.Context) error {
	l.once.Do(func() {
		l.locker.mu.Lock()
		defer l.locker.mu.Unlock()

		delete(l.locker.held, l.key)
	})

	return nil
}
