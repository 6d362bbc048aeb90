// Package background runs best-effort side work (summary refresh, estimate
// maintenance) without blocking request handling. Submitted work may be
// dropped at shutdown and failures are logged, never surfaced to callers.
package background

import (
	"context"
	"log/slog"
	"sync"
)

type Pool struct {
	logger *slog.Logger
	sem    chan struct{}
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewPool creates a pool running at most size tasks concurrently.
func NewPool(logger *slog.Logger, size int) *Pool {
	if size <= 0 {
		size = 4
	}

	return &Pool{
		logger: logger.With("module", "background"),
		sem:    make(chan struct{}, size),
	}
}

// Submit schedules fn as fire-and-forget work. It reports whether the task
// was accepted; a pool that is shutting down rejects new work.
func (p *Pool) Submit(ctx context.Context, name string, fn func(ctx context.Context)) bool {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()

		return false
	}

	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()

		p.sem <- struct{}{}
		defer func() { <-p.sem }()

		defer func() {
			if r := recover(); r != nil {
				p.logger.ErrorContext(ctx, "background task panicked", "task", name, "panic", r)
			}
		}()

		fn(ctx)
	}()

	return true
}

// Shutdown stops accepting work and waits for in-flight tasks, or returns
// the context error if the deadline expires first.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})

	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
