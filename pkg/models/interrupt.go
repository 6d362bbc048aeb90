package models

import "time"

// InterruptType is an out-of-band control signal applied to a run. It is
// registered, not force-applied; the executor observes it cooperatively at
// the next safe point.
type InterruptType string

const (
	InterruptPause     InterruptType = "PAUSE"
	InterruptResume    InterruptType = "RESUME"
	InterruptAbort     InterruptType = "ABORT"
	InterruptPauseAll  InterruptType = "PAUSE_ALL"
	InterruptResumeAll InterruptType = "RESUME_ALL"
	InterruptAbortAll  InterruptType = "ABORT_ALL"
)

// IsPipelineScope reports whether the interrupt type may be applied to a
// pipeline run (and fanned out to its nested runs).
func (t InterruptType) IsPipelineScope() bool {
	switch t {
	case InterruptPauseAll, InterruptResumeAll, InterruptAbortAll:
		return true
	default:
		return false
	}
}

// ExecutionInterrupt is one registered interrupt against a run.
type ExecutionInterrupt struct {
	ID          string        `json:"id"`
	AppID       string        `json:"app_id"`
	ExecutionID string        `json:"execution_id"`
	Type        InterruptType `json:"type"`

	// StateExecutionInstanceID scopes the interrupt to a single instance
	// when set.
	StateExecutionInstanceID string `json:"state_execution_instance_id,omitempty"`

	Properties map[string]any `json:"properties,omitempty"`
	CreatedBy  *EmbeddedUser  `json:"created_by,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
