package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/runwayci/runway/pkg/models"
)

// InterruptRepository handles execution-interrupt database operations.
type InterruptRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *InterruptRepository) Save(ctx context.Context, interrupt *models.ExecutionInterrupt) error {
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

	document, err := json.Marshal(interrupt)
	if err != nil {
		return fmt.Errorf("failed to marshal interrupt document: %w", err)
	}

	query := `
		INSERT INTO execution_interrupts (id, app_id, execution_id, document, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET document = EXCLUDED.document
	`

	_, err = r.db.ExecContext(ctx, query,
		interrupt.ID, interrupt.AppID, interrupt.ExecutionID, document, interrupt.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save interrupt %s: %w", interrupt.ID, err)
	}

	return nil
}

func (r *InterruptRepository) ListByExecution(ctx context.Context, appID, executionID string) ([]*models.ExecutionInterrupt, error) {
	query := `
		SELECT document
		FROM execution_interrupts
		WHERE app_id = $1 AND execution_id = $2
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, appID, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query interrupts for execution %s: %w", executionID, err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	interrupts := make([]*models.ExecutionInterrupt, 0)

	for rows.Next() {
		var document []byte

		err := rows.Scan(&document)
		if err != nil {
			return nil, fmt.Errorf("failed to scan interrupt: %w", err)
		}

		var interrupt models.ExecutionInterrupt

		err = json.Unmarshal(document, &interrupt)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal interrupt document: %w", err)
		}

		interrupts = append(interrupts, &interrupt)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating interrupts: %w", err)
	}

	return interrupts, nil
}
