package file

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/runwayci/runway/pkg/models"
	"github.com/runwayci/runway/pkg/persistence"
)

// WorkflowRepository handles workflow-related file operations.
type WorkflowRepository struct {
	persistence *Persistence
}

func (r *WorkflowRepository) appDir(appID string) string {
	return filepath.Join(r.persistence.root, "workflows", appID)
}

func (r *WorkflowRepository) documentPath(appID, id string) string {
	return filepath.Join(r.appDir(appID), id+".json")
}

func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workflow ID: %w", err)
		}

		workflow.ID = id.String()
	}

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = time.Now().UTC()
	}

	err := r.persistence.writeDocument(r.documentPath(workflow.AppID, workflow.ID), workflow)
	if err != nil {
		return fmt.Errorf("failed to save workflow %s: %w", workflow.ID, err)
	}

	return nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, appID, id string) (*models.Workflow, error) {
	r.persistence.mu.RLock()
	defer r.persistence.mu.RUnlock()

	var workflow models.Workflow

	err := r.persistence.readDocument(r.documentPath(appID, id), &workflow, persistence.ErrWorkflowNotFound)
	if err != nil {
		return nil, err
	}

	return &workflow, nil
}

func (r *WorkflowRepository) ListByApp(ctx context.Context, appID string) ([]*models.Workflow, error) {
	r.persistence.mu.RLock()
	defer r.persistence.mu.RUnlock()

	paths, err := r.persistence.listDocumentFiles(r.appDir(appID))
	if err != nil {
		return nil, err
	}

	workflows := make([]*models.Workflow, 0, len(paths))

	for _, path := range paths {
		var workflow models.Workflow

		err := r.persistence.readDocument(path, &workflow, persistence.ErrWorkflowNotFound)
		if err != nil {
			return nil, fmt.Errorf("failed to load workflow document %s: %w", path, err)
		}

		workflows = append(workflows, &workflow)
	}

	sort.Slice(workflows, func(a, b int) bool {
		return workflows[a].CreatedAt.After(workflows[b].CreatedAt)
	})

	return workflows, nil
}
