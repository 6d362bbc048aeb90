// Package execution implements the run lifecycle controller: triggering,
// queueing, starting and interrupting runs, and keeping their summary fields
// consistent under concurrent background refreshes.
package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/runwayci/runway/pkg/background"
	"github.com/runwayci/runway/pkg/eventbus"
	"github.com/runwayci/runway/pkg/events"
	"github.com/runwayci/runway/pkg/graph"
	"github.com/runwayci/runway/pkg/interrupts"
	"github.com/runwayci/runway/pkg/locker"
	"github.com/runwayci/runway/pkg/models"
	"github.com/runwayci/runway/pkg/otelhelper"
	"github.com/runwayci/runway/pkg/persistence"
	"github.com/runwayci/runway/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	queueLockClass = "execution_queue"
	queueLockTTL   = 30 * time.Second
)

// defaultTriggerUser is recorded when a trigger request carries no user, the
// usual case for automated deployment triggers.
var defaultTriggerUser = models.EmbeddedUser{Name: "Deployment Trigger"}

// activeRunStatuses are the statuses blocking promotion of a queued run.
var activeRunStatuses = []models.ExecutionStatus{
	models.StatusStarting,
	models.StatusRunning,
	models.StatusPaused,
	models.StatusPausing,
	models.StatusWaiting,
	models.StatusResumed,
	models.StatusAborting,
	models.StatusDiscontinuing,
}

// ArtifactResolver resolves referenced artifact ids at trigger time. Nil
// means the deployment has no artifact service wired.
type ArtifactResolver interface {
	Resolve(ctx context.Context, appID string, artifactIDs []string) ([]*models.Artifact, error)
}

// ServiceInstanceResolver resolves referenced service-instance ids at trigger
// time. Nil means the deployment has no infrastructure service wired.
type ServiceInstanceResolver interface {
	Resolve(ctx context.Context, appID string, instanceIDs []string) ([]*models.ServiceInstance, error)
}

type Config struct {
	Persistence      persistence.Persistence
	Executor         protocol.Executor
	Interrupts       *interrupts.Manager
	Publisher        eventbus.EventPublisher
	Locker           locker.Locker
	Artifacts        ArtifactResolver
	ServiceInstances ServiceInstanceResolver
	Pool             *background.Pool
	Logger           *slog.Logger
}

type Service struct {
	persistence      persistence.Persistence
	executor         protocol.Executor
	interrupts       *interrupts.Manager
	publisher        eventbus.EventPublisher
	locker           locker.Locker
	artifacts        ArtifactResolver
	serviceInstances ServiceInstanceResolver
	pool             *background.Pool
	renderer         *graph.Renderer
	tracer           trace.Tracer
	logger           *slog.Logger
}

func NewService(cfg Config) *Service {
	return &Service{
		persistence:      cfg.Persistence,
		executor:         cfg.Executor,
		interrupts:       cfg.Interrupts,
		publisher:        cfg.Publisher,
		locker:           cfg.Locker,
		artifacts:        cfg.Artifacts,
		serviceInstances: cfg.ServiceInstances,
		pool:             cfg.Pool,
		renderer:         graph.NewRenderer(cfg.Logger),
		tracer:           otel.Tracer("runway/execution"),
		logger:           cfg.Logger.With("module", "execution"),
	}
}

// TriggerPipelineExecution creates and starts a run of the given pipeline.
func (s *Service) TriggerPipelineExecution(ctx context.Context, appID, pipelineID string, args *models.ExecutionArgs) (*models.WorkflowExecution, error) {
	pipeline, err := s.persistence.Pipelines().GetByID(ctx, appID, pipelineID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pipeline %s: %w", pipelineID, err)
	}

	execution := &models.WorkflowExecution{
		AppID:        appID,
		WorkflowID:   pipeline.ID,
		Name:         pipeline.Name,
		WorkflowType: models.WorkflowTypePipeline,
		Status:       models.StatusQueued,
		PipelineSummary: &models.PipelineSummary{
			PipelineID:   pipeline.ID,
			PipelineName: pipeline.Name,
		},
		PipelineExecution: &models.PipelineExecution{
			PipelineID: pipeline.ID,
			Pipeline:   pipeline,
			Status:     models.StatusQueued,
		},
		ExecutionArgs: args,
	}

	return s.trigger(ctx, execution, nil)
}

// TriggerOrchestrationExecution creates a run of an orchestration workflow.
// Non-templatized orchestrations queue behind any active run of the same
// workflow; a dispatcher promotes them one at a time.
func (s *Service) TriggerOrchestrationExecution(ctx context.Context, appID, workflowID string, args *models.ExecutionArgs) (*models.WorkflowExecution, error) {
	workflow, err := s.persistence.Workflows().GetByID(ctx, appID, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow %s: %w", workflowID, err)
	}

	if !workflow.Valid {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowInvalid, workflowID)
	}

	if args != nil {
		err = validateWorkflowVariables(workflow.VariablesSchema, args.WorkflowVariables)
		if err != nil {
			return nil, err
		}
	}

	execution := &models.WorkflowExecution{
		AppID:          appID,
		WorkflowID:     workflow.ID,
		StateMachineID: workflow.StateMachineID,
		Name:           workflow.Name,
		WorkflowType:   models.WorkflowTypeOrchestration,
		Status:         models.StatusQueued,
		EnvID:          workflow.EnvID,
		ExecutionArgs:  args,
	}

	return s.trigger(ctx, execution, workflow)
}

// TriggerSimpleExecution creates and immediately starts a single-command run.
func (s *Service) TriggerSimpleExecution(ctx context.Context, appID, workflowID string, args *models.ExecutionArgs) (*models.WorkflowExecution, error) {
	name := "simple execution"
	if args != nil && args.CommandName != "" {
		name = args.CommandName
	}

	execution := &models.WorkflowExecution{
		AppID:         appID,
		WorkflowID:    workflowID,
		Name:          name,
		WorkflowType:  models.WorkflowTypeSimple,
		Status:        models.StatusQueued,
		ExecutionArgs: args,
	}

	if args != nil && args.ServiceID != "" {
		execution.ServiceIDs = []string{args.ServiceID}
	}

	return s.trigger(ctx, execution, nil)
}

// trigger finishes the shared trigger path: snapshot the initiating user,
// referenced artifacts and service instances, persist, then start immediately
// or park QUEUED.
func (s *Service) trigger(ctx context.Context, execution *models.WorkflowExecution, workflow *models.Workflow) (run *models.WorkflowExecution, err error) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "execution.trigger",
		attribute.String(otelhelper.AppIDKey, execution.AppID),
		attribute.String(otelhelper.WorkflowIDKey, execution.WorkflowID),
		attribute.String(otelhelper.WorkflowTypeKey, string(execution.WorkflowType)))

	defer func() {
		if err != nil {
			otelhelper.SetError(span, err)
		}

		span.End()
	}()

	execution.TriggeredBy = defaultTriggerUser
	if execution.ExecutionArgs != nil && execution.ExecutionArgs.TriggeredBy != nil {
		execution.TriggeredBy = *execution.ExecutionArgs.TriggeredBy
	}

	err = s.snapshotArtifacts(ctx, execution)
	if err != nil {
		return nil, err
	}

	err = s.snapshotServiceInstances(ctx, execution)
	if err != nil {
		return nil, err
	}

	queueBehindActive := execution.WorkflowType == models.WorkflowTypeOrchestration &&
		(workflow == nil || !workflow.Templatized)

	if queueBehindActive {
		queued, err := s.persistence.Executions().List(ctx, persistence.ListExecutionsOptions{
			AppID:      execution.AppID,
			WorkflowID: execution.WorkflowID,
			Statuses:   []models.ExecutionStatus{models.StatusQueued},
			Limit:      1,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to check queued executions: %w", err)
		}

		if len(queued) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyQueued, execution.WorkflowID)
		}

		active, err := s.persistence.Executions().List(ctx, persistence.ListExecutionsOptions{
			AppID:      execution.AppID,
			WorkflowID: execution.WorkflowID,
			Statuses:   activeRunStatuses,
			Limit:      1,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to check active executions: %w", err)
		}

		if len(active) > 0 {
			execution.Notes = "Waiting for a running execution of this workflow to finish"
		}

		err = s.persistence.Executions().Save(ctx, execution)
		if err != nil {
			return nil, err
		}

		s.publishEvent(ctx, execution.ID, events.ExecutionQueued{
			BaseEvent:  events.NewBaseEvent(events.ExecutionQueuedEvent, execution.AppID, execution.ID),
			WorkflowID: execution.WorkflowID,
		})

		return execution, nil
	}

	err = s.persistence.Executions().Save(ctx, execution)
	if err != nil {
		return nil, err
	}

	err = s.startExecution(ctx, execution)
	if err != nil {
		return nil, err
	}

	return execution, nil
}

// snapshotArtifacts resolves referenced artifact ids and copies their display
// names and service coverage into the argument record. A reference that no
// longer resolves rejects the whole trigger.
func (s *Service) snapshotArtifacts(ctx context.Context, execution *models.WorkflowExecution) error {
	args := execution.ExecutionArgs
	if s.artifacts == nil || args == nil || len(args.ArtifactIDs) == 0 {
		return nil
	}

	artifacts, err := s.artifacts.Resolve(ctx, execution.AppID, args.ArtifactIDs)
	if err != nil {
		return fmt.Errorf("failed to resolve artifacts: %w", err)
	}

	resolved := make(map[string]*models.Artifact, len(artifacts))
	for _, artifact := range artifacts {
		resolved[artifact.ID] = artifact
	}

	names := make(map[string]string, len(args.ArtifactIDs))

	var serviceIDs []string

	for _, id := range args.ArtifactIDs {
		artifact, ok := resolved[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrArtifactNotResolved, id)
		}

		names[id] = artifact.DisplayName
		serviceIDs = append(serviceIDs, artifact.ServiceIDs...)
	}

	args.ArtifactIDNames = names

	if len(execution.ServiceIDs) == 0 {
		execution.ServiceIDs = serviceIDs
	}

	return nil
}

// snapshotServiceInstances resolves referenced service-instance ids, records
// their display names and derives the run's target services and environments.
// A reference that no longer resolves rejects the whole trigger.
func (s *Service) snapshotServiceInstances(ctx context.Context, execution *models.WorkflowExecution) error {
	args := execution.ExecutionArgs
	if s.serviceInstances == nil || args == nil || len(args.ServiceInstanceIDs) == 0 {
		return nil
	}

	instances, err := s.serviceInstances.Resolve(ctx, execution.AppID, args.ServiceInstanceIDs)
	if err != nil {
		return fmt.Errorf("failed to resolve service instances: %w", err)
	}

	resolved := make(map[string]*models.ServiceInstance, len(instances))
	for _, instance := range instances {
		resolved[instance.ID] = instance
	}

	names := make(map[string]string, len(args.ServiceInstanceIDs))
	seenService := make(map[string]struct{})
	seenEnv := make(map[string]struct{})

	var serviceIDs, envIDs []string

	for _, id := range args.ServiceInstanceIDs {
		instance, ok := resolved[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrServiceInstanceNotResolved, id)
		}

		names[id] = instance.DisplayName

		if _, dup := seenService[instance.ServiceID]; instance.ServiceID != "" && !dup {
			seenService[instance.ServiceID] = struct{}{}
			serviceIDs = append(serviceIDs, instance.ServiceID)
		}

		if _, dup := seenEnv[instance.EnvID]; instance.EnvID != "" && !dup {
			seenEnv[instance.EnvID] = struct{}{}
			envIDs = append(envIDs, instance.EnvID)
		}
	}

	args.ServiceInstanceIDNames = names

	if len(execution.ServiceIDs) == 0 {
		execution.ServiceIDs = serviceIDs
	}

	if len(execution.EnvIDs) == 0 {
		execution.EnvIDs = envIDs
	}

	return nil
}

// startExecution moves a persisted run to RUNNING and hands it to the
// executor. A refused start marks the run ERROR.
func (s *Service) startExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	_, err := s.executor.Queue(ctx, execution)
	if err != nil {
		return fmt.Errorf("failed to queue execution %s: %w", execution.ID, err)
	}

	now := time.Now().UTC()

	applied, err := s.persistence.Executions().UpdateStartStatus(ctx, execution.AppID, execution.ID,
		[]models.ExecutionStatus{models.StatusNew, models.StatusQueued}, models.StatusRunning, &now)
	if err != nil {
		return err
	}

	if !applied {
		// Another worker already started it.
		return nil
	}

	execution.Status = models.StatusRunning
	execution.StartTs = &now

	err = s.executor.StartExecution(ctx, execution)
	if err != nil {
		s.markExecutionError(ctx, execution)

		return fmt.Errorf("executor refused execution %s: %w", execution.ID, err)
	}

	s.publishEvent(ctx, execution.ID, events.ExecutionStarted{
		BaseEvent:  events.NewBaseEvent(events.ExecutionStartedEvent, execution.AppID, execution.ID),
		WorkflowID: execution.WorkflowID,
	})

	return nil
}

func (s *Service) markExecutionError(ctx context.Context, execution *models.WorkflowExecution) {
	_, err := s.persistence.Executions().UpdateStartStatus(ctx, execution.AppID, execution.ID,
		[]models.ExecutionStatus{models.StatusRunning}, models.StatusError, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to mark execution as errored",
			"execution_id", execution.ID, "error", err)

		return
	}

	execution.Status = models.StatusError
}

// StartQueuedExecution promotes the oldest queued run of the workflow if no
// other run is active, serialized by a per-workflow advisory lock. It
// reports whether a run was started.
func (s *Service) StartQueuedExecution(ctx context.Context, appID, workflowID string) (started bool, err error) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "execution.start_queued",
		attribute.String(otelhelper.AppIDKey, appID),
		attribute.String(otelhelper.WorkflowIDKey, workflowID))

	defer func() {
		if err != nil {
			otelhelper.SetError(span, err)
		}

		span.End()
	}()

	lock, err := s.locker.Acquire(ctx, queueLockClass, workflowID, queueLockTTL)
	if err != nil {
		if errors.Is(err, locker.ErrNotAcquired) {
			return false, nil
		}

		return false, fmt.Errorf("failed to acquire queue lock for workflow %s: %w", workflowID, err)
	}

	defer func() {
		err := lock.Release(ctx)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to release queue lock", "workflow_id", workflowID, "error", err)
		}
	}()

	active, err := s.persistence.Executions().List(ctx, persistence.ListExecutionsOptions{
		AppID:      appID,
		WorkflowID: workflowID,
		Statuses:   activeRunStatuses,
		Limit:      1,
	})
	if err != nil {
		return false, fmt.Errorf("failed to check active executions: %w", err)
	}

	if len(active) > 0 {
		return false, nil
	}

	queued, err := s.persistence.Executions().List(ctx, persistence.ListExecutionsOptions{
		AppID:       appID,
		WorkflowID:  workflowID,
		Statuses:    []models.ExecutionStatus{models.StatusQueued},
		OldestFirst: true,
		Limit:       1,
	})
	if err != nil {
		return false, fmt.Errorf("failed to list queued executions: %w", err)
	}

	if len(queued) == 0 {
		return false, nil
	}

	run := queued[0]
	now := time.Now().UTC()

	applied, err := s.persistence.Executions().UpdateStartStatus(ctx, appID, run.ID,
		[]models.ExecutionStatus{models.StatusQueued}, models.StatusRunning, &now)
	if err != nil {
		return false, err
	}

	if !applied {
		return false, nil
	}

	accepted, err := s.executor.StartQueuedExecution(ctx, appID, run.ID)
	if err != nil || !accepted {
		s.markExecutionError(ctx, run)

		if err != nil {
			return false, fmt.Errorf("executor refused queued execution %s: %w", run.ID, err)
		}

		return false, nil
	}

	s.publishEvent(ctx, run.ID, events.ExecutionStarted{
		BaseEvent:  events.NewBaseEvent(events.ExecutionStartedEvent, appID, run.ID),
		WorkflowID: workflowID,
	})

	return true, nil
}

// DetailsOptions controls what GetExecutionDetails populates.
type DetailsOptions struct {
	IncludeGraph bool

	// ExcludeFromAggregation lists context-element entity ids rendered
	// individually instead of joining the aggregate bucket.
	ExcludeFromAggregation map[string]struct{}
}

// GetExecutionDetails loads one run with refreshed breakdown counts, the
// rebuilt pipeline stage rollup and, on request, the rendered graph.
func (s *Service) GetExecutionDetails(ctx context.Context, appID, executionID string, opts DetailsOptions) (details *models.WorkflowExecution, err error) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "execution.details",
		attribute.String(otelhelper.AppIDKey, appID),
		attribute.String(otelhelper.ExecutionIDKey, executionID),
		attribute.Bool("runway.include_graph", opts.IncludeGraph))

	defer func() {
		if err != nil {
			otelhelper.SetError(span, err)
		}

		span.End()
	}()

	execution, err := s.persistence.Executions().GetByID(ctx, appID, executionID)
	if err != nil {
		return nil, err
	}

	instances, err := s.persistence.Instances().ListByExecution(ctx, appID, executionID)
	if err != nil {
		return nil, err
	}

	err = s.refreshSummary(ctx, execution, instances)
	if err != nil {
		return nil, err
	}

	if opts.IncludeGraph && len(instances) > 0 {
		node, err := s.renderer.Render(instances, opts.ExcludeFromAggregation)
		if err != nil {
			return nil, err
		}

		execution.ExecutionNode = node
	}

	return execution, nil
}

// ListExecutions lists runs with refreshed summaries. Refresh failures are
// isolated per run: the stale document is returned and the failure logged.
func (s *Service) ListExecutions(ctx context.Context, opts persistence.ListExecutionsOptions) ([]*models.WorkflowExecution, error) {
	executions, err := s.persistence.Executions().List(ctx, opts)
	if err != nil {
		return nil, err
	}

	for _, execution := range executions {
		instances, err := s.persistence.Instances().ListByExecution(ctx, execution.AppID, execution.ID)
		if err == nil {
			err = s.refreshSummary(ctx, execution, instances)
		}

		if err != nil {
			s.logger.WarnContext(ctx, "failed to refresh execution summary",
				"execution_id", execution.ID, "error", err)
		}
	}

	return executions, nil
}

// ExecutionsRunning reports whether the workflow currently has an active run.
func (s *Service) ExecutionsRunning(ctx context.Context, appID, workflowID string) (bool, error) {
	active, err := s.persistence.Executions().List(ctx, persistence.ListExecutionsOptions{
		AppID:      appID,
		WorkflowID: workflowID,
		Statuses:   activeRunStatuses,
		Limit:      1,
	})
	if err != nil {
		return false, err
	}

	return len(active) > 0, nil
}

// UpdateNotes replaces the free-form notes of a run.
func (s *Service) UpdateNotes(ctx context.Context, appID, executionID, notes string) error {
	return s.persistence.Executions().UpdateNotes(ctx, appID, executionID, notes)
}

func (s *Service) refreshSummary(ctx context.Context, execution *models.WorkflowExecution, instances map[string]*models.StateExecutionInstance) error {
	alreadySettled := execution.Status.IsFinal() && execution.Breakdown != nil

	becameFinal := s.refreshBreakdown(execution, instances)

	if execution.WorkflowType == models.WorkflowTypePipeline && !alreadySettled {
		err := s.refreshPipelineExecution(ctx, execution, instances)
		if err != nil {
			return err
		}
	}

	if !alreadySettled && (becameFinal || execution.WorkflowType == models.WorkflowTypePipeline) {
		s.persistSummary(ctx, execution)
	}

	if becameFinal {
		s.publishEvent(ctx, execution.ID, events.ExecutionFinished{
			BaseEvent:  events.NewBaseEvent(events.ExecutionFinishedEvent, execution.AppID, execution.ID),
			WorkflowID: execution.WorkflowID,
			Status:     execution.Status,
		})

		if execution.WorkflowType == models.WorkflowTypePipeline && s.pool != nil {
			appID, pipelineID := execution.AppID, execution.WorkflowID
			s.pool.Submit(context.WithoutCancel(ctx), "pipeline_estimates", func(ctx context.Context) {
				s.updatePipelineEstimates(ctx, appID, pipelineID)
			})
		}
	}

	return nil
}

func (s *Service) publishEvent(ctx context.Context, key string, event eventbus.Event) {
	if s.publisher == nil {
		return
	}

	err := s.publisher.Publish(ctx, key, event)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to publish event",
			"event_type", event.GetType(), "key", key, "error", err)
	}
}

// validateWorkflowVariables checks the trigger request's variables against
// the workflow's JSON Schema, when one is declared.
func validateWorkflowVariables(schema json.RawMessage, variables map[string]string) error {
	if len(schema) == 0 {
		return nil
	}

	document := make(map[string]any, len(variables))
	for name, value := range variables {
		document[name] = value
	}

	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schema), gojsonschema.NewGoLoader(document))
	if err != nil {
		return fmt.Errorf("failed to validate workflow variables: %w", err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, problem := range result.Errors() {
			messages = append(messages, problem.String())
		}

		return fmt.Errorf("%w: %s", ErrVariablesInvalid, strings.Join(messages, "; "))
	}

	return nil
}
