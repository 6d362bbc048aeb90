package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
	"github.com/runwayci/runway/pkg/execution"
	"github.com/runwayci/runway/pkg/interrupts"
	"github.com/runwayci/runway/pkg/persistence"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400)
	problem.Instance = c.Path()
	problem.Type = "validation_error"
	problem.Detail = detail

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, kind, detail string) error {
	problem := problems.NewStatusProblem(404)
	problem.Instance = c.Path()
	problem.Type = kind
	problem.Detail = detail

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, kind, detail string) error {
	problem := problems.NewStatusProblem(409)
	problem.Instance = c.Path()
	problem.Type = kind
	problem.Detail = detail

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500)
	problem.Instance = c.Path()
	problem.Type = "internal_error"
	problem.Detail = err.Error()

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleExecutionError maps service layer errors onto problem responses.
// Graph defects deliberately fall through to 500: an inconsistent instance
// set is a server-side bug, not a client mistake.
func handleExecutionError(c fiber.Ctx, err error) error {
	switch {
	case persistence.IsExecutionNotFound(err):
		return notFound(c, "execution_not_found", "execution not found")

	case persistence.IsWorkflowNotFound(err):
		return notFound(c, "workflow_not_found", "workflow not found")

	case persistence.IsPipelineNotFound(err):
		return notFound(c, "pipeline_not_found", "pipeline not found")

	case errors.Is(err, execution.ErrNoWaitingApproval):
		return notFound(c, "approval_not_found", err.Error())

	case errors.Is(err, execution.ErrAlreadyQueued):
		return conflict(c, "already_queued", err.Error())

	case errors.Is(err, interrupts.ErrInvalidState):
		return conflict(c, "invalid_state", err.Error())

	case errors.Is(err, execution.ErrWorkflowInvalid),
		errors.Is(err, execution.ErrVariablesInvalid),
		errors.Is(err, execution.ErrArtifactNotResolved),
		errors.Is(err, execution.ErrServiceInstanceNotResolved),
		errors.Is(err, execution.ErrInvalidPipelineInterrupt),
		errors.Is(err, interrupts.ErrUnknownInterruptType):
		return badRequest(c, err.Error())

	default:
		return internalError(c, err)
	}
}
