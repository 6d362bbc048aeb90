package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/runwayci/runway/pkg/models"
	"github.com/runwayci/runway/pkg/persistence"
)

// PipelineRepository handles pipeline-related database operations.
type PipelineRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *PipelineRepository) Save(ctx context.Context, pipeline *models.Pipeline) error {
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

	document, err := json.Marshal(pipeline)
	if err != nil {
		return fmt.Errorf("failed to marshal pipeline document: %w", err)
	}

	query := `
		INSERT INTO pipelines (id, app_id, document, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET document = EXCLUDED.document
	`

	_, err = r.db.ExecContext(ctx, query, pipeline.ID, pipeline.AppID, document, pipeline.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save pipeline %s: %w", pipeline.ID, err)
	}

	return nil
}

func (r *PipelineRepository) GetByID(ctx context.Context, appID, id string) (*models.Pipeline, error) {
	query := `
		SELECT document
		FROM pipelines
		WHERE app_id = $1 AND id = $2
	`

	var document []byte

	err := r.db.QueryRowContext(ctx, query, appID, id).Scan(&document)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrPipelineNotFound
		}

		return nil, fmt.Errorf("failed to query pipeline %s: %w", id, err)
	}

	var pipeline models.Pipeline

	err = json.Unmarshal(document, &pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal pipeline document: %w", err)
	}

	return &pipeline, nil
}

// UpdateStateETAs replaces the pipeline's per-stage runtime estimates inside
// the stored document.
func (r *PipelineRepository) UpdateStateETAs(ctx context.Context, appID, id string, etas map[string]int64) error {
	payload, err := json.Marshal(etas)
	if err != nil {
		return fmt.Errorf("failed to marshal pipeline estimates: %w", err)
	}

	query := `
		UPDATE pipelines
		SET document = jsonb_set(document, '{state_eta_map}', $1::jsonb)
		WHERE app_id = $2 AND id = $3
	`

	result, err := r.db.ExecContext(ctx, query, payload, appID, id)
	if err != nil {
		return fmt.Errorf("failed to update pipeline %s estimates: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update pipeline %s estimates: %w", id, err)
	}

	if affected == 0 {
		return persistence.ErrPipelineNotFound
	}

	return nil
}
