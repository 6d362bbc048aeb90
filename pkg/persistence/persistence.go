// Package persistence provides the data storage abstraction layer for runs,
// state execution instances, workflows and pipelines.
package persistence

import (
	"context"
	"time"

	"github.com/runwayci/runway/pkg/models"
)

type Persistence interface {
	Executions() ExecutionRepository
	Instances() InstanceRepository
	Workflows() WorkflowRepository
	Pipelines() PipelineRepository
	Interrupts() InterruptRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ListExecutionsOptions filters and pages run listings. Zero values mean "no
// filter".
type ListExecutionsOptions struct {
	AppID        string
	WorkflowID   string
	WorkflowType models.WorkflowType
	Statuses     []models.ExecutionStatus
	CreatedAfter *time.Time

	Limit  int
	Offset int

	// OldestFirst orders by creation time ascending, used to pick the next
	// queued run. The default is newest first.
	OldestFirst bool
}

// ExecutionRepository stores run summary documents.
type ExecutionRepository interface {
	Save(ctx context.Context, execution *models.WorkflowExecution) error
	GetByID(ctx context.Context, appID, id string) (*models.WorkflowExecution, error)
	List(ctx context.Context, opts ListExecutionsOptions) ([]*models.WorkflowExecution, error)

	// UpdateSummary writes refreshed aggregate fields guarded by the
	// document version. A concurrent writer wins the race and the call
	// returns ErrConcurrentUpdate; the caller's copy is stale either way.
	UpdateSummary(ctx context.Context, execution *models.WorkflowExecution) error

	// UpdateStartStatus moves a run to the given status only if its current
	// status is one of from, reporting whether the transition was applied.
	UpdateStartStatus(ctx context.Context, appID, id string, from []models.ExecutionStatus, to models.ExecutionStatus, startTs *time.Time) (bool, error)

	UpdateNotes(ctx context.Context, appID, id, notes string) error
}

// InstanceRepository stores the per-step execution records of runs.
type InstanceRepository interface {
	Save(ctx context.Context, instance *models.StateExecutionInstance) error
	GetByID(ctx context.Context, appID, id string) (*models.StateExecutionInstance, error)
	ListByExecution(ctx context.Context, appID, executionID string) (map[string]*models.StateExecutionInstance, error)
}

type WorkflowRepository interface {
	Save(ctx context.Context, workflow *models.Workflow) error
	GetByID(ctx context.Context, appID, id string) (*models.Workflow, error)
	ListByApp(ctx context.Context, appID string) ([]*models.Workflow, error)
}

type PipelineRepository interface {
	Save(ctx context.Context, pipeline *models.Pipeline) error
	GetByID(ctx context.Context, appID, id string) (*models.Pipeline, error)

	// UpdateStateETAs replaces the pipeline's per-stage runtime estimates.
	UpdateStateETAs(ctx context.Context, appID, id string, etas map[string]int64) error
}

// InterruptRepository stores registered execution interrupts.
type InterruptRepository interface {
	Save(ctx context.Context, interrupt *models.ExecutionInterrupt) error
	ListByExecution(ctx context.Context, appID, executionID string) ([]*models.ExecutionInterrupt, error)
}
