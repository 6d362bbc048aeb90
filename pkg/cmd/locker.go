package cmd

import (
	"fmt"

	"github.com/runwayci/runway/pkg/locker"
)

// NewLocker constructs the advisory locker. An empty redis URL yields the
// in-process locker, which only serializes within a single binary.
func NewLocker(redisURL string) locker.Locker {
	if redisURL == "" {
		return locker.NewMemoryLocker()
	}

	l, err := locker.NewRedisLocker(redisURL)
	if err != nil {
		panic(fmt.Errorf("failed to create redis locker: %w", err))
	}

	return l
}
