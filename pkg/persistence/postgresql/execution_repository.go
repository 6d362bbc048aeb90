package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/runwayci/runway/pkg/models"
	"github.com/runwayci/runway/pkg/persistence"
)

// ExecutionRepository handles run-related database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// Save upserts the full run document. The rendered graph is request-scoped
// and stripped before writing.
func (r *ExecutionRepository) Save(ctx context.Context, execution *models.WorkflowExecution) error {
	if execution.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate execution ID: %w", err)
		}

		execution.ID = id.String()
	}

	if execution.CreatedAt.IsZero() {
		execution.CreatedAt = time.Now().UTC()
	}

	document, err := marshalExecutionDocument(execution)
	if err != nil {
		return persistence.NewExecutionError("Save", execution.AppID, execution.ID, err)
	}

	query := `
		INSERT INTO executions (id, app_id, workflow_id, workflow_type, status, version, document, created_at, start_ts, end_ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status
		  , version = EXCLUDED.version
		  , document = EXCLUDED.document
		  , start_ts = EXCLUDED.start_ts
		  , end_ts = EXCLUDED.end_ts
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID, execution.AppID, execution.WorkflowID, string(execution.WorkflowType),
		string(execution.Status), execution.Version, document, execution.CreatedAt,
		nullableTime(execution.StartTs), nullableTime(execution.EndTs))
	if err != nil {
		return persistence.NewExecutionError("Save", execution.AppID, execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, appID, id string) (*models.WorkflowExecution, error) {
	query := `
		SELECT status, version, document, start_ts, end_ts
		FROM executions
		WHERE app_id = $1 AND id = $2
	`

	row := r.db.QueryRowContext(ctx, query, appID, id)

	execution, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetByID", appID, id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("GetByID", appID, id, err)
	}

	return execution, nil
}

// List returns runs matching the options, ordered by creation time.
func (r *ExecutionRepository) List(ctx context.Context, opts persistence.ListExecutionsOptions) ([]*models.WorkflowExecution, error) {
	var (
		conditions []string
		args       []any
	)

	addCondition := func(clause string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(clause, len(args)))
	}

	if opts.AppID != "" {
		addCondition("app_id = $%d", opts.AppID)
	}

	if opts.WorkflowID != "" {
		addCondition("workflow_id = $%d", opts.WorkflowID)
	}

	if opts.WorkflowType != "" {
		addCondition("workflow_type = $%d", string(opts.WorkflowType))
	}

	if opts.CreatedAfter != nil {
		addCondition("created_at > $%d", *opts.CreatedAfter)
	}

	if len(opts.Statuses) > 0 {
		placeholders := make([]string, 0, len(opts.Statuses))

		for _, s := range opts.Statuses {
			args = append(args, string(s))
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}

		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}

	query := "SELECT status, version, document, start_ts, end_ts FROM executions"

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	if opts.OldestFirst {
		query += " ORDER BY created_at ASC, id ASC"
	} else {
		query += " ORDER BY created_at DESC, id DESC"
	}

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	executions := make([]*models.WorkflowExecution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

// UpdateSummary writes refreshed aggregate fields guarded by the version
// column.
func (r *ExecutionRepository) UpdateSummary(ctx context.Context, execution *models.WorkflowExecution) error {
	document, err := marshalExecutionDocument(execution)
	if err != nil {
		return persistence.NewExecutionError("UpdateSummary", execution.AppID, execution.ID, err)
	}

	query := `
		UPDATE executions
		SET status = $1, document = $2, start_ts = $3, end_ts = $4, version = version + 1
		WHERE app_id = $5 AND id = $6 AND version = $7
	`

	result, err := r.db.ExecContext(ctx, query,
		string(execution.Status), document,
		nullableTime(execution.StartTs), nullableTime(execution.EndTs),
		execution.AppID, execution.ID, execution.Version)
	if err != nil {
		return persistence.NewExecutionError("UpdateSummary", execution.AppID, execution.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewExecutionError("UpdateSummary", execution.AppID, execution.ID, err)
	}

	if affected == 0 {
		return persistence.NewExecutionError("UpdateSummary", execution.AppID, execution.ID, persistence.ErrConcurrentUpdate)
	}

	execution.Version++

	return nil
}

// UpdateStartStatus moves a run to the given status only if its current
// status is one of from.
func (r *ExecutionRepository) UpdateStartStatus(ctx context.Context, appID, id string, from []models.ExecutionStatus, to models.ExecutionStatus, startTs *time.Time) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}

	args := []any{string(to), nullableTime(startTs), appID, id}
	placeholders := make([]string, 0, len(from))

	for _, s := range from {
		args = append(args, string(s))
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}

	query := fmt.Sprintf(`
		UPDATE executions
		SET status = $1, start_ts = COALESCE($2, start_ts), version = version + 1
		WHERE app_id = $3 AND id = $4 AND status IN (%s)
	`, strings.Join(placeholders, ", "))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, persistence.NewExecutionError("UpdateStartStatus", appID, id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, persistence.NewExecutionError("UpdateStartStatus", appID, id, err)
	}

	return affected > 0, nil
}

func (r *ExecutionRepository) UpdateNotes(ctx context.Context, appID, id, notes string) error {
	query := `
		UPDATE executions
		SET document = jsonb_set(document, '{notes}', to_jsonb($1::text))
		WHERE app_id = $2 AND id = $3
	`

	result, err := r.db.ExecContext(ctx, query, notes, appID, id)
	if err != nil {
		return persistence.NewExecutionError("UpdateNotes", appID, id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewExecutionError("UpdateNotes", appID, id, err)
	}

	if affected == 0 {
		return persistence.NewExecutionError("UpdateNotes", appID, id, persistence.ErrExecutionNotFound)
	}

	return nil
}

// marshalExecutionDocument serializes the run for the document column. The
// guarded columns stay authoritative for status, version and timing.
func marshalExecutionDocument(execution *models.WorkflowExecution) ([]byte, error) {
	document := *execution
	document.ExecutionNode = nil

	data, err := json.Marshal(&document)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal execution document: %w", err)
	}

	return data, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanExecution rehydrates a run, copying the authoritative column values
// over the document fields.
func scanExecution(row rowScanner) (*models.WorkflowExecution, error) {
	var (
		status   string
		version  int
		document []byte
		startTs  sql.NullTime
		endTs    sql.NullTime
	)

	err := row.Scan(&status, &version, &document, &startTs, &endTs)
	if err != nil {
		return nil, err
	}

	var execution models.WorkflowExecution

	err = json.Unmarshal(document, &execution)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution document: %w", err)
	}

	execution.Status = models.ExecutionStatus(status)
	execution.Version = version
	execution.StartTs = timePointer(startTs)
	execution.EndTs = timePointer(endTs)

	return &execution, nil
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}

	return sql.NullTime{Time: *t, Valid: true}
}

func timePointer(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}

	value := t.Time

	return &value
}
