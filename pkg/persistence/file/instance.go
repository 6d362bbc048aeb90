package file

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/runwayci/runway/pkg/models"
	"github.com/runwayci/runway/pkg/persistence"
)

// InstanceRepository handles state-execution-instance file operations.
// Instances are grouped per run so a whole-run load is one directory read.
type InstanceRepository struct {
	persistence *Persistence
}

func (r *InstanceRepository) executionDir(appID, executionID string) string {
	return filepath.Join(r.persistence.root, "instances", appID, executionID)
}

func (r *InstanceRepository) documentPath(appID, executionID, id string) string {
	return filepath.Join(r.executionDir(appID, executionID), id+".json")
}

func (r *InstanceRepository) Save(ctx context.Context, instance *models.StateExecutionInstance) error {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	if instance.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate instance ID: %w", err)
		}

		instance.ID = id.String()
	}

	if instance.CreatedAt.IsZero() {
		instance.CreatedAt = time.Now().UTC()
	}

	path := r.documentPath(instance.AppID, instance.ExecutionID, instance.ID)

	err := r.persistence.writeDocument(path, instance)
	if err != nil {
		return fmt.Errorf("failed to save instance %s: %w", instance.ID, err)
	}

	return nil
}

func (r *InstanceRepository) GetByID(ctx context.Context, appID, id string) (*models.StateExecutionInstance, error) {
	r.persistence.mu.RLock()
	defer r.persistence.mu.RUnlock()

	// Instances are filed per run, so a lookup by bare id scans the app's
	// run directories.
	executionIDs, err := listSubdirectories(filepath.Join(r.persistence.root, "instances", appID))
	if err != nil {
		return nil, err
	}

	for _, executionID := range executionIDs {
		var instance models.StateExecutionInstance

		err := r.persistence.readDocument(r.documentPath(appID, executionID, id), &instance, persistence.ErrInstanceNotFound)
		if err == nil {
			return &instance, nil
		}

		if !persistence.IsInstanceNotFound(err) {
			return nil, err
		}
	}

	return nil, persistence.ErrInstanceNotFound
}

func (r *InstanceRepository) ListByExecution(ctx context.Context, appID, executionID string) (map[string]*models.StateExecutionInstance, error) {
	r.persistence.mu.RLock()
	defer r.persistence.mu.RUnlock()

	paths, err := r.persistence.listDocumentFiles(r.executionDir(appID, executionID))
	if err != nil {
		return nil, err
	}

	instances := make(map[string]*models.StateExecutionInstance, len(paths))

	for _, path := range paths {
		var instance models.StateExecutionInstance

		err := r.persistence.readDocument(path, &instance, persistence.ErrInstanceNotFound)
		if err != nil {
			return nil, fmt.Errorf("failed to load instance document %s: %w", path, err)
		}

		instances[instance.ID] = &instance
	}

	return instances, nil
}
