// Package remote implements the executor contracts by publishing commands on
// the event bus. The state-machine executor service consumes them and drives
// the run; the execution core never blocks on it.
package remote

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/runwayci/runway/pkg/eventbus"
	"github.com/runwayci/runway/pkg/events"
	"github.com/runwayci/runway/pkg/models"
)

type Executor struct {
	publisher eventbus.EventPublisher
	logger    *slog.Logger
}

func NewExecutor(publisher eventbus.EventPublisher, logger *slog.Logger) *Executor {
	return &Executor{
		publisher: publisher,
		logger:    logger.With("module", "remote_executor"),
	}
}

// Queue reserves the root instance handle for a run. The remote executor
// materializes the root context itself when the start request arrives, so
// queueing only fixes the handle both sides will use.
func (e *Executor) Queue(ctx context.Context, execution *models.WorkflowExecution) (string, error) {
	return uuid.New().String(), nil
}

func (e *Executor) StartExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	event := events.ExecutionStartRequested{
		BaseEvent:      events.NewBaseEvent(events.ExecutionStartRequestedEvent, execution.AppID, execution.ID),
		WorkflowID:     execution.WorkflowID,
		StateMachineID: execution.StateMachineID,
	}

	err := e.publisher.Publish(ctx, execution.ID, event)
	if err != nil {
		return fmt.Errorf("failed to publish start request for execution %s: %w", execution.ID, err)
	}

	e.logger.InfoContext(ctx, "Requested execution start",
		"execution_id", execution.ID, "workflow_id", execution.WorkflowID)

	return nil
}

// StartQueuedExecution publishes the start request for a promoted queued
// run. Publication is acceptance; delivery failures report false.
func (e *Executor) StartQueuedExecution(ctx context.Context, appID, executionID string) (bool, error) {
	event := events.ExecutionStartRequested{
		BaseEvent: events.NewBaseEvent(events.ExecutionStartRequestedEvent, appID, executionID),
	}

	err := e.publisher.Publish(ctx, executionID, event)
	if err != nil {
		return false, fmt.Errorf("failed to publish start request for execution %s: %w", executionID, err)
	}

	return true, nil
}

// Register forwards a persisted interrupt to the executor service.
func (e *Executor) Register(ctx context.Context, interrupt *models.ExecutionInterrupt) error {
	event := events.InterruptRegistered{
		BaseEvent:                events.NewBaseEvent(events.InterruptRegisteredEvent, interrupt.AppID, interrupt.ExecutionID),
		InterruptID:              interrupt.ID,
		InterruptType:            interrupt.Type,
		StateExecutionInstanceID: interrupt.StateExecutionInstanceID,
	}

	err := e.publisher.Publish(ctx, interrupt.ExecutionID, event)
	if err != nil {
		return fmt.Errorf("failed to publish interrupt %s: %w", interrupt.ID, err)
	}

	return nil
}
