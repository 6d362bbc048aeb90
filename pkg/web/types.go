// Package web provides the HTTP request and response types of the
// execution API.
package web

import "github.com/runwayci/runway/pkg/models"

// TriggerExecutionRequest is the request body for starting a run. The id
// field matching the workflow type must be set.
type TriggerExecutionRequest struct {
	WorkflowType    models.WorkflowType `json:"workflow_type"              validate:"required,oneof=PIPELINE ORCHESTRATION SIMPLE"`
	PipelineID      string              `json:"pipeline_id,omitempty"      validate:"required_if=WorkflowType PIPELINE"`
	OrchestrationID string              `json:"orchestration_id,omitempty" validate:"required_if=WorkflowType ORCHESTRATION"`
	WorkflowID      string              `json:"workflow_id,omitempty"      validate:"required_if=WorkflowType SIMPLE"`

	ServiceID          string               `json:"service_id,omitempty"`
	ServiceInstanceIDs []string             `json:"service_instance_ids,omitempty"`
	CommandName        string               `json:"command_name,omitempty"`
	ArtifactIDs        []string             `json:"artifact_ids,omitempty"`
	WorkflowVariables  map[string]string    `json:"workflow_variables,omitempty"`
	Notes              string               `json:"notes,omitempty"`
	TriggeredBy        *models.EmbeddedUser `json:"triggered_by,omitempty"`
}

// ExecutionArgs converts the request body into the argument record the
// execution service snapshots onto the run.
func (r TriggerExecutionRequest) ExecutionArgs() *models.ExecutionArgs {
	return &models.ExecutionArgs{
		WorkflowType:       r.WorkflowType,
		OrchestrationID:    r.OrchestrationID,
		PipelineID:         r.PipelineID,
		ServiceID:          r.ServiceID,
		ServiceInstanceIDs: r.ServiceInstanceIDs,
		CommandName:        r.CommandName,
		ArtifactIDs:        r.ArtifactIDs,
		WorkflowVariables:  r.WorkflowVariables,
		Notes:              r.Notes,
		TriggeredBy:        r.TriggeredBy,
	}
}

// RegisterInterruptRequest is the request body for registering an interrupt
// against a run.
type RegisterInterruptRequest struct {
	Type       models.InterruptType `json:"type" validate:"required,oneof=PAUSE RESUME ABORT PAUSE_ALL RESUME_ALL ABORT_ALL"`
	Properties map[string]any       `json:"properties,omitempty"`
	CreatedBy  *models.EmbeddedUser `json:"created_by,omitempty"`
}

// UpdateNotesRequest is the request body for replacing a run's notes. An
// empty body clears them.
type UpdateNotesRequest struct {
	Notes string `json:"notes" validate:"max=4096"`
}

// BreakdownResponse is the standalone breakdown payload of a run.
type BreakdownResponse struct {
	ExecutionID string                   `json:"execution_id"`
	Status      models.ExecutionStatus   `json:"status"`
	Total       int                      `json:"total"`
	Breakdown   *models.CountsByStatuses `json:"breakdown,omitempty"`
}
