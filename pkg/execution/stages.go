package execution

import (
	"context"
	"fmt"

	"github.com/runwayci/runway/pkg/models"
	"github.com/runwayci/runway/pkg/persistence"
)

// estimateSampleSize is how many recent successful runs feed each stage's
// duration estimate.
const estimateSampleSize = 5

// refreshPipelineExecution rebuilds the pipeline stage rollup from the
// current instance set: each declared stage element is matched to its
// instance by name, with a QUEUED placeholder (carrying the persisted ETA)
// for stages that have not started.
func (s *Service) refreshPipelineExecution(ctx context.Context, execution *models.WorkflowExecution, instances map[string]*models.StateExecutionInstance) error {
	pipeline, err := s.pipelineForExecution(ctx, execution)
	if err != nil {
		return err
	}

	byName := make(map[string]*models.StateExecutionInstance, len(instances))
	for _, instance := range instances {
		byName[instance.DisplayName] = instance
	}

	pe := execution.PipelineExecution
	stageExecutions := make([]models.PipelineStageExecution, 0, len(pipeline.Stages))

	var envIDs []string

	seenEnvs := make(map[string]struct{})

	for _, element := range pipeline.StageElements() {
		switch element.Type {
		case models.StateTypeApproval, models.StateTypeEnvState:
		default:
			return fmt.Errorf("unexpected pipeline stage element type %s for %s", element.Type, element.Name)
		}

		stage := models.PipelineStageExecution{
			StateType: element.Type,
			StateName: element.Name,
			Status:    models.StatusQueued,
		}

		instance := byName[element.Name]
		if instance == nil {
			if eta, ok := pipeline.StateETAMap[element.Name]; ok {
				stage.EstimatedTime = eta
			}

			stageExecutions = append(stageExecutions, stage)

			continue
		}

		stage.Status = instance.Status
		stage.StartTs = instance.StartTs
		stage.EndTs = instance.EndTs
		stage.StateExecutionData = instance.ExecutionData

		if instance.ExecutionData != nil {
			stage.Message = instance.ExecutionData.DataErrorMsg()
		}

		if element.Type == models.StateTypeEnvState {
			s.attachNestedExecution(ctx, execution.AppID, &stage, instance)

			if data, ok := instance.ExecutionData.(*models.EnvStateExecutionData); ok && data.EnvID != "" {
				if _, dup := seenEnvs[data.EnvID]; !dup {
					seenEnvs[data.EnvID] = struct{}{}
					envIDs = append(envIDs, data.EnvID)
				}
			}
		}

		stageExecutions = append(stageExecutions, stage)
	}

	pe.StageExecutions = stageExecutions
	pe.Status = pipelineStatus(execution, stageExecutions)

	if len(envIDs) > 0 {
		execution.EnvIDs = envIDs
	}

	return nil
}

// attachNestedExecution loads the run an env stage launched and lets its
// status take over the stage's, since the nested run is refreshed more often
// than the stage instance. Enrichment is per-stage best-effort: a load
// failure leaves the stage as the instance reported it.
func (s *Service) attachNestedExecution(ctx context.Context, appID string, stage *models.PipelineStageExecution, instance *models.StateExecutionInstance) {
	data, ok := instance.ExecutionData.(*models.EnvStateExecutionData)
	if !ok || data.ExecutionID == "" {
		return
	}

	nested, err := s.persistence.Executions().GetByID(ctx, appID, data.ExecutionID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to load nested execution for pipeline stage",
			"stage", stage.StateName, "nested_execution_id", data.ExecutionID, "error", err)

		return
	}

	stage.Status = nested.Status
	stage.WorkflowExecutions = append(stage.WorkflowExecutions, nested)
}

// WaitingApproval returns the approval payload of the pipeline stage
// currently blocked on a manual decision, carrying the approval id the
// decision endpoint needs.
func (s *Service) WaitingApproval(ctx context.Context, appID, executionID string) (*models.ApprovalExecutionData, error) {
	details, err := s.GetExecutionDetails(ctx, appID, executionID, DetailsOptions{})
	if err != nil {
		return nil, err
	}

	if details.WorkflowType != models.WorkflowTypePipeline || details.PipelineExecution == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoWaitingApproval, executionID)
	}

	for _, stage := range details.PipelineExecution.StageExecutions {
		if stage.StateType != models.StateTypeApproval {
			continue
		}

		data, ok := stage.StateExecutionData.(*models.ApprovalExecutionData)
		if !ok {
			continue
		}

		switch data.DataStatus() {
		case models.StatusPaused, models.StatusWaiting:
			return data, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrNoWaitingApproval, executionID)
}

// pipelineStatus rolls the stage list up into the pipeline's own status. A
// blocked stage dominates while the run is live; a finished run keeps its
// settled status.
func pipelineStatus(execution *models.WorkflowExecution, stages []models.PipelineStageExecution) models.ExecutionStatus {
	if execution.Status.IsFinal() {
		return execution.Status
	}

	for _, stage := range stages {
		switch stage.Status {
		case models.StatusWaiting:
			return models.StatusWaiting
		case models.StatusPaused, models.StatusPausing:
			return models.StatusPaused
		}
	}

	return execution.Status
}

// pipelineForExecution returns the pipeline definition backing the run,
// loading and caching it on the execution when absent.
func (s *Service) pipelineForExecution(ctx context.Context, execution *models.WorkflowExecution) (*models.Pipeline, error) {
	if execution.PipelineExecution != nil && execution.PipelineExecution.Pipeline != nil {
		return execution.PipelineExecution.Pipeline, nil
	}

	pipelineID := execution.WorkflowID
	if execution.PipelineSummary != nil && execution.PipelineSummary.PipelineID != "" {
		pipelineID = execution.PipelineSummary.PipelineID
	}

	pipeline, err := s.persistence.Pipelines().GetByID(ctx, execution.AppID, pipelineID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pipeline %s: %w", pipelineID, err)
	}

	if execution.PipelineExecution == nil {
		execution.PipelineExecution = &models.PipelineExecution{PipelineID: pipeline.ID}
	}

	execution.PipelineExecution.Pipeline = pipeline

	return pipeline, nil
}

// updatePipelineEstimates recomputes each stage's mean duration from the
// most recent successful runs and persists the estimate map. Runs on the
// background pool after a pipeline run settles; failures are only logged.
func (s *Service) updatePipelineEstimates(ctx context.Context, appID, pipelineID string) {
	recent, err := s.persistence.Executions().List(ctx, persistence.ListExecutionsOptions{
		AppID:        appID,
		WorkflowID:   pipelineID,
		WorkflowType: models.WorkflowTypePipeline,
		Statuses:     []models.ExecutionStatus{models.StatusSuccess},
		Limit:        estimateSampleSize,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to list runs for estimate update",
			"pipeline_id", pipelineID, "error", err)

		return
	}

	durations := make(map[string][]int64)

	for _, run := range recent {
		if run.PipelineExecution == nil {
			continue
		}

		for _, stage := range run.PipelineExecution.StageExecutions {
			if stage.Status != models.StatusSuccess || stage.StartTs == nil || stage.EndTs == nil {
				continue
			}

			if len(durations[stage.StateName]) >= estimateSampleSize {
				continue
			}

			durations[stage.StateName] = append(durations[stage.StateName],
				stage.EndTs.Sub(*stage.StartTs).Milliseconds())
		}
	}

	if len(durations) == 0 {
		return
	}

	etas := make(map[string]int64, len(durations))

	for name, samples := range durations {
		var total int64
		for _, d := range samples {
			total += d
		}

		etas[name] = total / int64(len(samples))
	}

	err = s.persistence.Pipelines().UpdateStateETAs(ctx, appID, pipelineID, etas)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to persist pipeline estimates",
			"pipeline_id", pipelineID, "error", err)
	}
}
