package file

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/runwayci/runway/pkg/models"
)

// InterruptRepository handles execution-interrupt file operations.
type InterruptRepository struct {
	persistence *Persistence
}

func (r *InterruptRepository) executionDir(appID, executionID string) string {
	return filepath.Join(r.persistence.root, "interrupts", appID, executionID)
}

func (r *InterruptRepository) Save(ctx context.Context, interrupt *models.ExecutionInterrupt) error {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	if interrupt.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate interrupt ID: %w", err)
		}

		interrupt.ID = id.String()
	}

	if interrupt.CreatedAt.IsZero() {
		interrupt.CreatedAt = time.Now().UTC()
	}

	path := filepath.Join(r.executionDir(interrupt.AppID, interrupt.ExecutionID), interrupt.ID+".json")

	err := r.persistence.writeDocument(path, interrupt)
	if err != nil {
		return fmt.Errorf("failed to save interrupt %s: %w", interrupt.ID, err)
	}

	return nil
}

func (r *InterruptRepository) ListByExecution(ctx context.Context, appID, executionID string) ([]*models.ExecutionInterrupt, error) {
	r.persistence.mu.RLock()
	defer r.persistence.mu.RUnlock()

	paths, err := r.persistence.listDocumentFiles(r.executionDir(appID, executionID))
	if err != nil {
		return nil, err
	}

	interrupts := make([]*models.ExecutionInterrupt, 0, len(paths))

	for _, path := range paths {
		var interrupt models.ExecutionInterrupt

		err := r.persistence.readDocument(path, &interrupt, fmt.Errorf("interrupt document missing: %s", path))
		if err != nil {
			return nil, err
		}

		interrupts = append(interrupts, &interrupt)
	}

	sort.Slice(interrupts, func(a, b int) bool {
		return interrupts[a].CreatedAt.Before(interrupts[b].CreatedAt)
	})

	return interrupts, nil
}
