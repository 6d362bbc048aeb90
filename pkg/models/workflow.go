package models

import (
	"encoding/json"
	"time"
)

// Workflow is an orchestration workflow definition. Only the fields the
// execution core reads are modeled; authoring lives elsewhere.
type Workflow struct {
	ID             string `json:"id"`
	AppID          string `json:"app_id"`
	Name           string `json:"name"`
	EnvID          string `json:"env_id,omitempty"`
	StateMachineID string `json:"state_machine_id"`

	// Templatized workflows start immediately instead of queueing.
	Templatized bool `json:"templatized,omitempty"`

	// Valid is false while the authoring side considers the workflow
	// incomplete; invalid workflows cannot be triggered.
	Valid bool `json:"valid"`

	// VariablesSchema is an optional JSON Schema the trigger request's
	// workflow variables are validated against.
	VariablesSchema json.RawMessage `json:"variables_schema,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
