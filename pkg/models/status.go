// Package models defines the core domain models for execution tracking.
package models

// ExecutionStatus is the status of a run, a state execution instance, or a
// pipeline stage. The constant order below is also the total order used for
// tie-breaking during aggregation; it is not a linear lifecycle.
type ExecutionStatus string

const (
	StatusNew           ExecutionStatus = "NEW"
	StatusQueued        ExecutionStatus = "QUEUED"
	StatusStarting      ExecutionStatus = "STARTING"
	StatusRunning       ExecutionStatus = "RUNNING"
	StatusWaiting       ExecutionStatus = "WAITING"
	StatusPausing       ExecutionStatus = "PAUSING"
	StatusPaused        ExecutionStatus = "PAUSED"
	StatusResumed       ExecutionStatus = "RESUMED"
	StatusSuccess       ExecutionStatus = "SUCCESS"
	StatusFailed        ExecutionStatus = "FAILED"
	StatusError         ExecutionStatus = "ERROR"
	StatusAborting      ExecutionStatus = "ABORTING"
	StatusAborted       ExecutionStatus = "ABORTED"
	StatusRejected      ExecutionStatus = "REJECTED"
	StatusExpired       ExecutionStatus = "EXPIRED"
	StatusScheduled     ExecutionStatus = "SCHEDULED"
	StatusDiscontinuing ExecutionStatus = "DISCONTINUING"
)

// IsFinal reports whether the status is terminal. A record in a final status
// is immutable.
func (s ExecutionStatus) IsFinal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusError, StatusAborted, StatusRejected, StatusExpired:
		return true
	default:
		return false
	}
}

// ActiveExecutionStatuses are the statuses a run can hold while it still
// occupies its workflow's single concurrent-run slot.
var ActiveExecutionStatuses = []ExecutionStatus{StatusNew, StatusQueued, StatusRunning, StatusPaused}
