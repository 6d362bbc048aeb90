package models

import (
	"encoding/json"
	"time"
)

// PipelineStageElement is one declared element of a pipeline stage, matched
// at refresh time to its StateExecutionInstance by name.
type PipelineStageElement struct {
	Name       string         `json:"name"`
	Type       StateType      `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
}

// PipelineStage groups stage elements that run together.
type PipelineStage struct {
	Name     string                 `json:"name,omitempty"`
	Elements []PipelineStageElement `json:"elements"`
}

// Pipeline is a pipeline definition. StateETAMap holds the persisted
// per-stage duration estimates (milliseconds) maintained after each final
// run.
type Pipeline struct {
	ID          string          `json:"id"`
	AppID       string          `json:"app_id"`
	Name        string          `json:"name"`
	Stages      []PipelineStage `json:"stages"`
	StateETAMap map[string]int64 `json:"state_eta_map,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// StageElements returns the flattened element list across all stages.
func (p *Pipeline) StageElements() []PipelineStageElement {
	var elements []PipelineStageElement
	for _, stage := range p.Stages {
		elements = append(elements, stage.Elements...)
	}

	return elements
}

// PipelineStageExecution annotates one declared stage element with the
// status, timing and execution data of its matching instance. Rebuilt on
// every refresh; not independently persisted beyond the run.
type PipelineStageExecution struct {
	StateType     StateType       `json:"state_type"`
	StateName     string          `json:"state_name"`
	Status        ExecutionStatus `json:"status"`
	StartTs       *time.Time      `json:"start_ts,omitempty"`
	EndTs         *time.Time      `json:"end_ts,omitempty"`
	Message       string          `json:"message,omitempty"`
	EstimatedTime int64           `json:"estimated_time,omitempty"`

	StateExecutionData StateExecutionData `json:"-"`

	// WorkflowExecutions holds the nested run launched by an env stage.
	WorkflowExecutions []*WorkflowExecution `json:"workflow_executions,omitempty"`
}

type stageExecutionEnvelope struct {
	PipelineStageExecutionAlias

	DataKind string          `json:"data_kind,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// PipelineStageExecutionAlias breaks the MarshalJSON recursion.
type PipelineStageExecutionAlias PipelineStageExecution

func (e PipelineStageExecution) MarshalJSON() ([]byte, error) {
	env := stageExecutionEnvelope{PipelineStageExecutionAlias: PipelineStageExecutionAlias(e)}

	if e.StateExecutionData != nil {
		payload, err := json.Marshal(e.StateExecutionData)
		if err != nil {
			return nil, err
		}

		env.DataKind = e.StateExecutionData.Kind()
		env.Data = payload
	}

	return json.Marshal(env)
}

func (e *PipelineStageExecution) UnmarshalJSON(raw []byte) error {
	var env stageExecutionEnvelope

	err := json.Unmarshal(raw, &env)
	if err != nil {
		return err
	}

	*e = PipelineStageExecution(env.PipelineStageExecutionAlias)

	if env.DataKind == "" {
		return nil
	}

	data, err := NewStateExecutionData(env.DataKind)
	if err != nil {
		return err
	}

	err = json.Unmarshal(env.Data, data)
	if err != nil {
		return err
	}

	e.StateExecutionData = data

	return nil
}

// PipelineExecution is the per-run copy of the pipeline's stage list.
type PipelineExecution struct {
	PipelineID      string                   `json:"pipeline_id"`
	Pipeline        *Pipeline                `json:"pipeline,omitempty"`
	Status          ExecutionStatus          `json:"status"`
	StageExecutions []PipelineStageExecution `json:"stage_executions,omitempty"`
}
