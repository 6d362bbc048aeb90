package models

import "time"

// WorkflowType distinguishes the three kinds of runs.
type WorkflowType string

const (
	WorkflowTypePipeline      WorkflowType = "PIPELINE"
	WorkflowTypeOrchestration WorkflowType = "ORCHESTRATION"
	WorkflowTypeSimple        WorkflowType = "SIMPLE"
)

// EmbeddedUser identifies who triggered a run.
type EmbeddedUser struct {
	UUID  string `json:"uuid,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// CountsByStatuses is the per-run breakdown of instance counts.
type CountsByStatuses struct {
	Success    int `json:"success"`
	Failed     int `json:"failed"`
	InProgress int `json:"in_progress"`
	Queued     int `json:"queued"`
}

// Total returns the number of counted instances.
func (c CountsByStatuses) Total() int {
	return c.Success + c.Failed + c.InProgress + c.Queued
}

// Artifact is a deployable build referenced by a trigger request. Only the
// fields the execution core snapshots are modeled here.
type Artifact struct {
	ID          string   `json:"id"`
	AppID       string   `json:"app_id"`
	DisplayName string   `json:"display_name"`
	ServiceIDs  []string `json:"service_ids,omitempty"`
}

// ServiceInstance is a deployment target referenced by a trigger request.
// Only the fields the execution core snapshots are modeled here.
type ServiceInstance struct {
	ID          string `json:"id"`
	AppID       string `json:"app_id"`
	DisplayName string `json:"display_name"`
	ServiceID   string `json:"service_id,omitempty"`
	EnvID       string `json:"env_id,omitempty"`
}

// ExecutionArgs is the argument record of a trigger request. Referenced
// artifact and service-instance ids are resolved and snapshotted into it at
// trigger time.
type ExecutionArgs struct {
	WorkflowType           WorkflowType      `json:"workflow_type"`
	OrchestrationID        string            `json:"orchestration_id,omitempty"`
	PipelineID             string            `json:"pipeline_id,omitempty"`
	ServiceID              string            `json:"service_id,omitempty"`
	ServiceInstanceIDs     []string          `json:"service_instance_ids,omitempty"`
	ServiceInstanceIDNames map[string]string `json:"service_instance_id_names,omitempty"`
	CommandName            string            `json:"command_name,omitempty"`
	ArtifactIDs            []string          `json:"artifact_ids,omitempty"`
	ArtifactIDNames        map[string]string `json:"artifact_id_names,omitempty"`
	WorkflowVariables      map[string]string `json:"workflow_variables,omitempty"`
	Notes                  string            `json:"notes,omitempty"`
	TriggeredBy            *EmbeddedUser     `json:"triggered_by,omitempty"`
	TriggeredFromPipeline  bool              `json:"triggered_from_pipeline,omitempty"`
	PipelineExecutionID    string            `json:"pipeline_execution_id,omitempty"`
}

// PipelineSummary is the pipeline reference carried by nested runs.
type PipelineSummary struct {
	PipelineID   string `json:"pipeline_id"`
	PipelineName string `json:"pipeline_name"`
}

// WorkflowExecution is the aggregate root for one run. It is created at
// trigger time in status QUEUED, mutated by background refresh and by the
// executor callback, and never deleted except by cascading deletion of its
// workflow or application.
type WorkflowExecution struct {
	ID             string          `json:"id"`
	AppID          string          `json:"app_id"`
	WorkflowID     string          `json:"workflow_id"`
	StateMachineID string          `json:"state_machine_id,omitempty"`
	Name           string          `json:"name"`
	WorkflowType   WorkflowType    `json:"workflow_type"`
	Status         ExecutionStatus `json:"status"`

	Total     int               `json:"total,omitempty"`
	Breakdown *CountsByStatuses `json:"breakdown,omitempty"`

	PipelineExecution   *PipelineExecution `json:"pipeline_execution,omitempty"`
	PipelineExecutionID string             `json:"pipeline_execution_id,omitempty"`
	PipelineSummary     *PipelineSummary   `json:"pipeline_summary,omitempty"`

	// ExecutionNode is the rendered graph, populated on demand and never
	// persisted.
	ExecutionNode *GraphNode `json:"execution_node,omitempty"`

	ExecutionArgs *ExecutionArgs `json:"execution_args,omitempty"`

	EnvID      string   `json:"env_id,omitempty"`
	EnvIDs     []string `json:"env_ids,omitempty"`
	ServiceIDs []string `json:"service_ids,omitempty"`

	ServiceSummaries []ElementExecutionSummary `json:"service_summaries,omitempty"`

	TriggeredBy EmbeddedUser `json:"triggered_by"`
	Notes       string       `json:"notes,omitempty"`

	// Version guards optimistic-concurrency updates of summary fields.
	Version int `json:"version"`

	CreatedAt time.Time  `json:"created_at"`
	StartTs   *time.Time `json:"start_ts,omitempty"`
	EndTs     *time.Time `json:"end_ts,omitempty"`
}
