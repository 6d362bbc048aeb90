package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// StateType identifies what kind of state an instance executed.
type StateType string

const (
	StateTypePhase       StateType = "PHASE"
	StateTypePhaseStep   StateType = "PHASE_STEP"
	StateTypeSubWorkflow StateType = "SUB_WORKFLOW"
	StateTypeFork        StateType = "FORK"
	StateTypeRepeat      StateType = "REPEAT"
	StateTypeApproval    StateType = "APPROVAL"
	StateTypeEnvState    StateType = "ENV_STATE"
	StateTypeCommand     StateType = "COMMAND"
)

// IsGrouping reports whether instances of this type contain child instances.
func (t StateType) IsGrouping() bool {
	switch t {
	case StateTypePhase, StateTypePhaseStep, StateTypeSubWorkflow, StateTypeFork, StateTypeRepeat:
		return true
	default:
		return false
	}
}

// Context element types.
const (
	ContextElementTypeService  = "SERVICE"
	ContextElementTypeHost     = "HOST"
	ContextElementTypeInstance = "INSTANCE"
)

// ContextElement identifies the repeated or forked value (a host, a service,
// an instance) a particular state execution ran for.
type ContextElement struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// StateExecutionInstance is one record per executed step, phase or
// sub-workflow. It is created when the step begins executing, mutated in
// place as it progresses, and immutable once in a final status. Instances are
// owned by their run and never shared across runs.
//
// ParentInstanceID points at the container this instance lives inside.
// PrevInstanceID points at the instance that ran immediately before this one
// at the same nesting level; at most one instance may claim a given
// PrevInstanceID (the "next" relation is a function). A violation is a
// defect, not a valid run shape.
type StateExecutionInstance struct {
	ID                string             `json:"id"`
	AppID             string             `json:"app_id"`
	ExecutionID       string             `json:"execution_id"`
	StateType         StateType          `json:"state_type"`
	DisplayName       string             `json:"display_name"`
	Status            ExecutionStatus    `json:"status"`
	StartTs           *time.Time         `json:"start_ts,omitempty"`
	EndTs             *time.Time         `json:"end_ts,omitempty"`
	ParentInstanceID  string             `json:"parent_instance_id,omitempty"`
	PrevInstanceID    string             `json:"prev_instance_id,omitempty"`
	ContextElement    *ContextElement    `json:"context_element,omitempty"`
	ContextTransition bool               `json:"context_transition,omitempty"`
	Rollback          bool               `json:"rollback,omitempty"`
	ExecutionData     StateExecutionData `json:"-"`
	CreatedAt         time.Time          `json:"created_at"`
}

// instanceEnvelope is the persisted form of an instance. The execution-data
// payload is a closed set of variants dispatched by kind.
type instanceEnvelope struct {
	StateExecutionInstanceAlias

	DataKind string          `json:"data_kind,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// StateExecutionInstanceAlias breaks the MarshalJSON recursion.
type StateExecutionInstanceAlias StateExecutionInstance

func (i StateExecutionInstance) MarshalJSON() ([]byte, error) {
	env := instanceEnvelope{StateExecutionInstanceAlias: StateExecutionInstanceAlias(i)}

	if i.ExecutionData != nil {
		payload, err := json.Marshal(i.ExecutionData)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal execution data: %w", err)
		}

		env.DataKind = i.ExecutionData.Kind()
		env.Data = payload
	}

	return json.Marshal(env)
}

func (i *StateExecutionInstance) UnmarshalJSON(raw []byte) error {
	var env instanceEnvelope

	err := json.Unmarshal(raw, &env)
	if err != nil {
		return err
	}

	*i = StateExecutionInstance(env.StateExecutionInstanceAlias)

	if env.DataKind == "" {
		return nil
	}

	data, err := NewStateExecutionData(env.DataKind)
	if err != nil {
		return err
	}

	err = json.Unmarshal(env.Data, data)
	if err != nil {
		return fmt.Errorf("failed to unmarshal %q execution data: %w", env.DataKind, err)
	}

	i.ExecutionData = data

	return nil
}
