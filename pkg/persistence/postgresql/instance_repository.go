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

// InstanceRepository handles state-execution-instance database operations.
type InstanceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *InstanceRepository) Save(ctx context.Context, instance *models.StateExecutionInstance) error {
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

	document, err := json.Marshal(instance)
	if err != nil {
		return fmt.Errorf("failed to marshal instance document: %w", err)
	}

	query := `
		INSERT INTO state_execution_instances (id, app_id, execution_id, document, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET document = EXCLUDED.document
	`

	_, err = r.db.ExecContext(ctx, query,
		instance.ID, instance.AppID, instance.ExecutionID, document, instance.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save instance %s: %w", instance.ID, err)
	}

	return nil
}

func (r *InstanceRepository) GetByID(ctx context.Context, appID, id string) (*models.StateExecutionInstance, error) {
	query := `
		SELECT document
		FROM state_execution_instances
		WHERE app_id = $1 AND id = $2
	`

	var document []byte

	err := r.db.QueryRowContext(ctx, query, appID, id).Scan(&document)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrInstanceNotFound
		}

		return nil, fmt.Errorf("failed to query instance %s: %w", id, err)
	}

	var instance models.StateExecutionInstance

	err = json.Unmarshal(document, &instance)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal instance document: %w", err)
	}

	return &instance, nil
}

func (r *InstanceRepository) ListByExecution(ctx context.Context, appID, executionID string) (map[string]*models.StateExecutionInstance, error) {
	query := `
		SELECT document
		FROM state_execution_instances
		WHERE app_id = $1 AND execution_id = $2
	`

	rows, err := r.db.QueryContext(ctx, query, appID, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances for execution %s: %w", executionID, err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	instances := make(map[string]*models.StateExecutionInstance)

	for rows.Next() {
		var document []byte

		err := rows.Scan(&document)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}

		var instance models.StateExecutionInstance

		err = json.Unmarshal(document, &instance)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal instance document: %w", err)
		}

		instances[instance.ID] = &instance
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating instances: %w", err)
	}

	return instances, nil
}
