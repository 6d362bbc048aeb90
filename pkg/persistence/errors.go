// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrExecutionNotFound indicates a run was not found by the given identifier.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrInstanceNotFound indicates a state execution instance was not found.
	ErrInstanceNotFound = errors.New("state execution instance not found")

	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrPipelineNotFound indicates a pipeline was not found by the given identifier.
	ErrPipelineNotFound = errors.New("pipeline not found")

	// ErrConcurrentUpdate indicates a guarded write lost the race against a
	// concurrent writer; the caller's document version is stale.
	ErrConcurrentUpdate = errors.New("concurrent update")
)

// ExecutionError wraps run-related errors with additional context.
type ExecutionError struct {
	Op          string // Operation being performed (e.g., "GetByID", "Save", "UpdateSummary")
	AppID       string // Application ID if applicable
	ExecutionID string // Run ID if applicable
	Err         error  // Underlying error
}

func (e *ExecutionError) Error() string {
	if e.AppID != "" {
		return fmt.Sprintf("%s operation failed for execution %s in app %s: %v", e.Op, e.ExecutionID, e.AppID, e.Err)
	}

	return fmt.Sprintf("%s operation failed for execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for execution errors.
func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewExecutionError creates a new execution error with context.
func NewExecutionError(op, appID, executionID string, err error) *ExecutionError {
	return &ExecutionError{
		Op:          op,
		AppID:       appID,
		ExecutionID: executionID,
		Err:         err,
	}
}

// IsExecutionNotFound checks if an error indicates a run was not found.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsInstanceNotFound checks if an error indicates an instance was not found.
func IsInstanceNotFound(err error) bool {
	return errors.Is(err, ErrInstanceNotFound)
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsPipelineNotFound checks if an error indicates a pipeline was not found.
func IsPipelineNotFound(err error) bool {
	return errors.Is(err, ErrPipelineNotFound)
}

// IsConcurrentUpdate checks if an error indicates a lost optimistic write.
func IsConcurrentUpdate(err error) bool {
	return errors.Is(err, ErrConcurrentUpdate)
}
