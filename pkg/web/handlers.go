package web

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/runwayci/runway/pkg/execution"
	"github.com/runwayci/runway/pkg/models"
	"github.com/runwayci/runway/pkg/persistence"
)

type APIHandlers struct {
	executions  *execution.Service
	persistence persistence.Persistence
	validator   *validator.Validate
}

func NewAPIHandlers(
	executions *execution.Service,
	persistence persistence.Persistence,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		executions:  executions,
		persistence: persistence,
		validator:   validator,
	}
}

func (h *APIHandlers) TriggerExecution(c fiber.Ctx) error {
	appID := c.Params("appId")
	if appID == "" {
		return badRequest(c, "Application ID is required")
	}

	var req TriggerExecutionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	args := req.ExecutionArgs()

	var (
		run *models.WorkflowExecution
		err error
	)

	switch req.WorkflowType {
	case models.WorkflowTypePipeline:
		run, err = h.executions.TriggerPipelineExecution(c.Context(), appID, req.PipelineID, args)
	case models.WorkflowTypeOrchestration:
		run, err = h.executions.TriggerOrchestrationExecution(c.Context(), appID, req.OrchestrationID, args)
	case models.WorkflowTypeSimple:
		run, err = h.executions.TriggerSimpleExecution(c.Context(), appID, req.WorkflowID, args)
	}

	if err != nil {
		return handleExecutionError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(run)
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	appID := c.Params("appId")
	executionID := c.Params("id")

	if appID == "" || executionID == "" {
		return badRequest(c, "Application ID and execution ID are required")
	}

	opts := execution.DetailsOptions{}

	if includeGraphStr := c.Query("include_graph"); includeGraphStr != "" {
		includeGraph, err := strconv.ParseBool(includeGraphStr)
		if err != nil {
			return badRequest(c, "Invalid include_graph value: "+includeGraphStr)
		}

		opts.IncludeGraph = includeGraph
	}

	if exclude := c.Query("exclude_from_aggregation"); exclude != "" {
		opts.ExcludeFromAggregation = make(map[string]struct{})
		for _, id := range strings.Split(exclude, ",") {
			if id = strings.TrimSpace(id); id != "" {
				opts.ExcludeFromAggregation[id] = struct{}{}
			}
		}
	}

	details, err := h.executions.GetExecutionDetails(c.Context(), appID, executionID, opts)
	if err != nil {
		return handleExecutionError(c, err)
	}

	return c.JSON(details)
}

func (h *APIHandlers) ListExecutions(c fiber.Ctx) error {
	appID := c.Params("appId")
	if appID == "" {
		return badRequest(c, "Application ID is required")
	}

	opts, err := h.parseListOptions(c, appID)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	executions, err := h.executions.ListExecutions(c.Context(), *opts)
	if err != nil {
		return handleExecutionError(c, err)
	}

	return c.JSON(fiber.Map{
		"executions": executions,
		"pagination": fiber.Map{
			"limit":  opts.Limit,
			"offset": opts.Offset,
		},
	})
}

func (h *APIHandlers) parseListOptions(c fiber.Ctx, appID string) (*persistence.ListExecutionsOptions, error) {
	opts := &persistence.ListExecutionsOptions{
		AppID:      appID,
		WorkflowID: c.Query("workflow_id"),
	}

	if workflowType := c.Query("workflow_type"); workflowType != "" {
		opts.WorkflowType = models.WorkflowType(workflowType)
	}

	if statuses := c.Query("status"); statuses != "" {
		for _, s := range strings.Split(statuses, ",") {
			opts.Statuses = append(opts.Statuses, models.ExecutionStatus(strings.TrimSpace(s)))
		}
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		opts.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		opts.Offset = offset
	}

	return opts, nil
}

// GetExecutionBreakdown serves the standalone per-status count summary of a
// run, refreshed on read like the full details endpoint.
func (h *APIHandlers) GetExecutionBreakdown(c fiber.Ctx) error {
	appID := c.Params("appId")
	executionID := c.Params("id")

	if appID == "" || executionID == "" {
		return badRequest(c, "Application ID and execution ID are required")
	}

	details, err := h.executions.GetExecutionDetails(c.Context(), appID, executionID, execution.DetailsOptions{})
	if err != nil {
		return handleExecutionError(c, err)
	}

	return c.JSON(BreakdownResponse{
		ExecutionID: details.ID,
		Status:      details.Status,
		Total:       details.Total,
		Breakdown:   details.Breakdown,
	})
}

// GetWaitingApproval serves the approval payload of the pipeline stage
// currently blocked on a manual decision.
func (h *APIHandlers) GetWaitingApproval(c fiber.Ctx) error {
	appID := c.Params("appId")
	executionID := c.Params("id")

	if appID == "" || executionID == "" {
		return badRequest(c, "Application ID and execution ID are required")
	}

	approval, err := h.executions.WaitingApproval(c.Context(), appID, executionID)
	if err != nil {
		return handleExecutionError(c, err)
	}

	return c.JSON(approval)
}

func (h *APIHandlers) RegisterInterrupt(c fiber.Ctx) error {
	appID := c.Params("appId")
	executionID := c.Params("id")

	if appID == "" || executionID == "" {
		return badRequest(c, "Application ID and execution ID are required")
	}

	var req RegisterInterruptRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	interrupt := &models.ExecutionInterrupt{
		AppID:       appID,
		ExecutionID: executionID,
		Type:        req.Type,
		Properties:  req.Properties,
		CreatedBy:   req.CreatedBy,
	}

	err := h.executions.TriggerExecutionInterrupt(c.Context(), interrupt)
	if err != nil {
		return handleExecutionError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(interrupt)
}

func (h *APIHandlers) UpdateNotes(c fiber.Ctx) error {
	appID := c.Params("appId")
	executionID := c.Params("id")

	if appID == "" || executionID == "" {
		return badRequest(c, "Application ID and execution ID are required")
	}

	var req UpdateNotesRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	err := h.executions.UpdateNotes(c.Context(), appID, executionID, req.Notes)
	if err != nil {
		return handleExecutionError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// ExecutionsRunning reports whether the workflow currently has an active run,
// used by trigger UIs to warn before queueing.
func (h *APIHandlers) ExecutionsRunning(c fiber.Ctx) error {
	appID := c.Params("appId")
	workflowID := c.Params("workflowId")

	if appID == "" || workflowID == "" {
		return badRequest(c, "Application ID and workflow ID are required")
	}

	running, err := h.executions.ExecutionsRunning(c.Context(), appID, workflowID)
	if err != nil {
		return handleExecutionError(c, err)
	}

	return c.JSON(fiber.Map{"running": running})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "Runway API is healthy"
	httpStatus := http.StatusOK

	repositoryCheck := "ok"
	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		message = "Runway API is unhealthy"
		httpStatus = http.StatusInternalServerError
		repositoryCheck = err.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
