// Package protocol defines the contracts between the execution core and the
// state-machine executor driving individual runs.
package protocol

import (
	"context"

	"github.com/runwayci/runway/pkg/models"
)

// Executor drives the state machine of a run. The execution core owns run
// summaries and queue ordering; the executor owns step-by-step progress and
// writes StateExecutionInstances as it goes.
type Executor interface {
	// Queue prepares the root state context of a run before it starts and
	// returns the root instance handle.
	Queue(ctx context.Context, execution *models.WorkflowExecution) (string, error)

	// StartExecution begins driving a run that was already moved to RUNNING.
	StartExecution(ctx context.Context, execution *models.WorkflowExecution) error

	// StartQueuedExecution asks the executor to pick up a promoted queued
	// run, reporting whether it accepted.
	StartQueuedExecution(ctx context.Context, appID, executionID string) (bool, error)
}

// InterruptManager applies registered interrupts to a live run. Registration
// is cooperative: the executor observes the interrupt at its next safe point
// rather than being preempted.
type InterruptManager interface {
	Register(ctx context.Context, interrupt *models.ExecutionInterrupt) error
}
