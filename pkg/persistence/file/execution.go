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

// ExecutionRepository handles run-related file operations.
type ExecutionRepository struct {
	persistence *Persistence
}

func (r *ExecutionRepository) appDir(appID string) string {
	return filepath.Join(r.persistence.root, "executions", appID)
}

func (r *ExecutionRepository) documentPath(appID, id string) string {
	return filepath.Join(r.appDir(appID), id+".json")
}

// Save writes the full run document. The rendered graph is request-scoped
// and stripped before writing.
func (r *ExecutionRepository) Save(ctx context.Context, execution *models.WorkflowExecution) error {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

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

	return r.write(execution)
}

func (r *ExecutionRepository) write(execution *models.WorkflowExecution) error {
	document := *execution
	document.ExecutionNode = nil

	err := r.persistence.writeDocument(r.documentPath(execution.AppID, execution.ID), &document)
	if err != nil {
		return persistence.NewExecutionError("Save", execution.AppID, execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, appID, id string) (*models.WorkflowExecution, error) {
	r.persistence.mu.RLock()
	defer r.persistence.mu.RUnlock()

	return r.load(appID, id)
}

func (r *ExecutionRepository) load(appID, id string) (*models.WorkflowExecution, error) {
	var execution models.WorkflowExecution

	err := r.persistence.readDocument(r.documentPath(appID, id), &execution, persistence.ErrExecutionNotFound)
	if err != nil {
		return nil, persistence.NewExecutionError("GetByID", appID, id, err)
	}

	return &execution, nil
}

// List returns runs matching the options, ordered by creation time.
func (r *ExecutionRepository) List(ctx context.Context, opts persistence.ListExecutionsOptions) ([]*models.WorkflowExecution, error) {
	r.persistence.mu.RLock()
	defer r.persistence.mu.RUnlock()

	appIDs := []string{opts.AppID}

	if opts.AppID == "" {
		entries, err := listSubdirectories(filepath.Join(r.persistence.root, "executions"))
		if err != nil {
			return nil, err
		}

		appIDs = entries
	}

	var matched []*models.WorkflowExecution

	for _, appID := range appIDs {
		paths, err := r.persistence.listDocumentFiles(r.appDir(appID))
		if err != nil {
			return nil, err
		}

		for _, path := range paths {
			var execution models.WorkflowExecution

			err := r.persistence.readDocument(path, &execution, persistence.ErrExecutionNotFound)
			if err != nil {
				return nil, fmt.Errorf("failed to load execution document %s: %w", path, err)
			}

			if matchesListOptions(&execution, opts) {
				matched = append(matched, &execution)
			}
		}
	}

	sort.Slice(matched, func(a, b int) bool {
		if matched[a].CreatedAt.Equal(matched[b].CreatedAt) {
			return matched[a].ID < matched[b].ID
		}

		if opts.OldestFirst {
			return matched[a].CreatedAt.Before(matched[b].CreatedAt)
		}

		return matched[a].CreatedAt.After(matched[b].CreatedAt)
	})

	return pageExecutions(matched, opts.Offset, opts.Limit), nil
}

func matchesListOptions(execution *models.WorkflowExecution, opts persistence.ListExecutionsOptions) bool {
	if opts.WorkflowID != "" && execution.WorkflowID != opts.WorkflowID {
		return false
	}

	if opts.WorkflowType != "" && execution.WorkflowType != opts.WorkflowType {
		return false
	}

	if opts.CreatedAfter != nil && !execution.CreatedAt.After(*opts.CreatedAfter) {
		return false
	}

	if len(opts.Statuses) > 0 {
		found := false

		for _, s := range opts.Statuses {
			if execution.Status == s {
				found = true

				break
			}
		}

		if !found {
			return false
		}
	}

	return true
}

func pageExecutions(executions []*models.WorkflowExecution, offset, limit int) []*models.WorkflowExecution {
	if offset >= len(executions) {
		return []*models.WorkflowExecution{}
	}

	executions = executions[offset:]

	if limit > 0 && limit < len(executions) {
		executions = executions[:limit]
	}

	return executions
}

// UpdateSummary writes refreshed aggregate fields guarded by the document
// version.
func (r *ExecutionRepository) UpdateSummary(ctx context.Context, execution *models.WorkflowExecution) error {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	current, err := r.load(execution.AppID, execution.ID)
	if err != nil {
		return err
	}

	if current.Version != execution.Version {
		return persistence.NewExecutionError("UpdateSummary", execution.AppID, execution.ID, persistence.ErrConcurrentUpdate)
	}

	current.Status = execution.Status
	current.StartTs = execution.StartTs
	current.EndTs = execution.EndTs
	current.Total = execution.Total
	current.Breakdown = execution.Breakdown
	current.PipelineExecution = execution.PipelineExecution
	current.ServiceSummaries = execution.ServiceSummaries
	current.Version++

	err = r.write(current)
	if err != nil {
		return err
	}

	execution.Version = current.Version

	return nil
}

// UpdateStartStatus moves a run to the given status only if its current
// status is one of from.
func (r *ExecutionRepository) UpdateStartStatus(ctx context.Context, appID, id string, from []models.ExecutionStatus, to models.ExecutionStatus, startTs *time.Time) (bool, error) {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	current, err := r.load(appID, id)
	if err != nil {
		return false, err
	}

	allowed := false

	for _, s := range from {
		if current.Status == s {
			allowed = true

			break
		}
	}

	if !allowed {
		return false, nil
	}

	current.Status = to
	if startTs != nil {
		current.StartTs = startTs
	}

	current.Version++

	err = r.write(current)
	if err != nil {
		return false, err
	}

	return true, nil
}

func (r *ExecutionRepository) UpdateNotes(ctx context.Context, appID, id, notes string) error {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	current, err := r.load(appID, id)
	if err != nil {
		return err
	}

	current.Notes = notes

	return r.write(current)
}
