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

// PipelineRepository handles pipeline-related file operations.
type PipelineRepository struct {
	persistence *Persistence
}

func (r *PipelineRepository) documentPath(appID, id string) string {
	return filepath.Join(r.persistence.root, "pipelines", appID, id+".json")
}

func (r *PipelineRepository) Save(ctx context.Context, pipeline *models.Pipeline) error {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	if pipeline.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate pipeline ID: %w", err)
		}

		pipeline.ID = id.String()
	}

	if pipeline.CreatedAt.IsZero() {
		pipeline.CreatedAt = time.Now().UTC()
	}

	err := r.persistence.writeDocument(r.documentPath(pipeline.AppID, pipeline.ID), pipeline)
	if err != nil {
		return fmt.Errorf("failed to save pipeline %s: %w", pipeline.ID, err)
	}

	return nil
}

func (r *PipelineRepository) GetByID(ctx context.Context, appID, id string) (*models.Pipeline, error) {
	r.persistence.mu.RLock()
	defer r.persistence.mu.RUnlock()

	return r.load(appID, id)
}

func (r *PipelineRepository) load(appID, id string) (*models.Pipeline, error) {
	var pipeline models.Pipeline

	err := r.persistence.readDocument(r.documentPath(appID, id), &pipeline, persistence.ErrPipelineNotFound)
	if err != nil {
		return nil, err
	}

	return &pipeline, nil
}

func (r *PipelineRepository) UpdateStateETAs(ctx context.Context, appID, id string, etas map[string]int64) error {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	pipeline, err := r.load(appID, id)
	if err != nil {
		return err
	}

	pipeline.StateETAMap = etas

	err = r.persistence.writeDocument(r.documentPath(appID, id), pipeline)
	if err != nil {
		return fmt.Errorf("failed to update pipeline %s estimates: %w", id, err)
	}

	return nil
}
