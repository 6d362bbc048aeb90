package models

import (
	"fmt"
	"time"
)

// Execution-data payload kinds.
const (
	DataKindPlain    = "plain"
	DataKindElement  = "element"
	DataKindFork     = "fork"
	DataKindCommand  = "command"
	DataKindEnvState = "env_state"
	DataKindApproval = "approval"
)

// StateExecutionData is the per-state execution payload attached to an
// instance. It is a closed set of variants dispatched by Kind; callers that
// need variant-specific fields check the capability interfaces below instead
// of inspecting concrete types.
type StateExecutionData interface {
	Kind() string
	DataStatus() ExecutionStatus
	DataStartTs() *time.Time
	DataEndTs() *time.Time
	DataErrorMsg() string
}

// ElementSummaryProvider is implemented by payloads that carry per-element
// status summaries (repeat states).
type ElementSummaryProvider interface {
	ElementSummaries() []ElementExecutionSummary
}

// InstanceSummaryProvider is implemented by payloads that carry per-instance
// status summaries (fork states).
type InstanceSummaryProvider interface {
	InstanceSummaries() []InstanceStatusSummary
}

// ElementExecutionSummary summarizes the execution of one repeated element.
type ElementExecutionSummary struct {
	ContextElement *ContextElement `json:"context_element,omitempty"`
	Status         ExecutionStatus `json:"status,omitempty"`
	StartTs        *time.Time      `json:"start_ts,omitempty"`
	EndTs          *time.Time      `json:"end_ts,omitempty"`
	InstancesCount int             `json:"instances_count,omitempty"`
}

// InstanceStatusSummary summarizes the status of one forked branch.
type InstanceStatusSummary struct {
	InstanceName string          `json:"instance_name"`
	Status       ExecutionStatus `json:"status"`
}

// BaseExecutionData carries the fields common to every payload variant.
type BaseExecutionData struct {
	Status   ExecutionStatus `json:"status,omitempty"`
	StartTs  *time.Time      `json:"start_ts,omitempty"`
	EndTs    *time.Time      `json:"end_ts,omitempty"`
	ErrorMsg string          `json:"error_msg,omitempty"`
}

func (d *BaseExecutionData) DataStatus() ExecutionStatus { return d.Status }
func (d *BaseExecutionData) DataStartTs() *time.Time     { return d.StartTs }
func (d *BaseExecutionData) DataEndTs() *time.Time       { return d.EndTs }
func (d *BaseExecutionData) DataErrorMsg() string        { return d.ErrorMsg }

// PlainExecutionData is the payload for leaf steps with no variant fields.
type PlainExecutionData struct {
	BaseExecutionData

	Params map[string]any `json:"params,omitempty"`
}

func (d *PlainExecutionData) Kind() string { return DataKindPlain }

// ElementExecutionData is the payload of a repeat state: one summary per
// repeated element.
type ElementExecutionData struct {
	BaseExecutionData

	StatusSummaries []ElementExecutionSummary `json:"status_summaries,omitempty"`
}

func (d *ElementExecutionData) Kind() string { return DataKindElement }

func (d *ElementExecutionData) ElementSummaries() []ElementExecutionSummary {
	return d.StatusSummaries
}

// ForkExecutionData is the payload of a fork state: the declared branch
// elements and their statuses.
type ForkExecutionData struct {
	BaseExecutionData

	Elements  []string                `json:"elements,omitempty"`
	Summaries []InstanceStatusSummary `json:"instance_summaries,omitempty"`
}

func (d *ForkExecutionData) Kind() string { return DataKindFork }

func (d *ForkExecutionData) InstanceSummaries() []InstanceStatusSummary {
	return d.Summaries
}

// CommandExecutionData is the payload of a command step.
type CommandExecutionData struct {
	BaseExecutionData

	CommandName string `json:"command_name,omitempty"`
	HostName    string `json:"host_name,omitempty"`
}

func (d *CommandExecutionData) Kind() string { return DataKindCommand }

// EnvStateExecutionData is the payload of a pipeline env stage. ExecutionID
// points at the nested run the stage launched.
type EnvStateExecutionData struct {
	BaseExecutionData

	WorkflowID  string `json:"workflow_id,omitempty"`
	EnvID       string `json:"env_id,omitempty"`
	ExecutionID string `json:"execution_id,omitempty"`
}

func (d *EnvStateExecutionData) Kind() string { return DataKindEnvState }

// ApprovalExecutionData is the payload of a pipeline approval stage.
type ApprovalExecutionData struct {
	BaseExecutionData

	ApprovalID string        `json:"approval_id,omitempty"`
	ApprovedBy *EmbeddedUser `json:"approved_by,omitempty"`
	Comments   string        `json:"comments,omitempty"`
	UserGroups []string      `json:"user_groups,omitempty"`
}

func (d *ApprovalExecutionData) Kind() string { return DataKindApproval }

// NewStateExecutionData returns an empty payload of the given kind, used to
// rehydrate persisted instances.
func NewStateExecutionData(kind string) (StateExecutionData, error) {
	switch kind {
	case DataKindPlain:
		return &PlainExecutionData{}, nil
	case DataKindElement:
		return &ElementExecutionData{}, nil
	case DataKindFork:
		return &ForkExecutionData{}, nil
	case DataKindCommand:
		return &CommandExecutionData{}, nil
	case DataKindEnvState:
		return &EnvStateExecutionData{}, nil
	case DataKindApproval:
		return &ApprovalExecutionData{}, nil
	default:
		return nil, fmt.Errorf("unknown execution data kind: %s", kind)
	}
}
