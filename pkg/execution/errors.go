package execution

import "errors"

var (
	// ErrWorkflowInvalid is returned when triggering a workflow the
	// authoring side has not marked complete.
	ErrWorkflowInvalid = errors.New("workflow is not valid")

	// ErrAlreadyQueued rejects a trigger when the workflow already has a
	// queued run waiting.
	ErrAlreadyQueued = errors.New("workflow already has a queued execution")

	// ErrArtifactNotResolved is returned when a referenced artifact id no
	// longer resolves at trigger time.
	ErrArtifactNotResolved = errors.New("referenced artifact not found")

	// ErrServiceInstanceNotResolved is returned when a referenced service
	// instance id no longer resolves at trigger time.
	ErrServiceInstanceNotResolved = errors.New("referenced service instance not found")

	// ErrNoWaitingApproval is returned when a run has no approval stage
	// waiting on a decision.
	ErrNoWaitingApproval = errors.New("no approval stage is waiting")

	// ErrVariablesInvalid is returned when the trigger request's workflow
	// variables fail the workflow's schema.
	ErrVariablesInvalid = errors.New("workflow variables failed validation")

	// ErrInvalidPipelineInterrupt rejects non pipeline-scope interrupt
	// types against a pipeline run.
	ErrInvalidPipelineInterrupt = errors.New("interrupt type not valid for pipeline executions")
)
