package models

import "time"

// Node types that do not correspond to a StateType.
const (
	// NodeTypeElement wraps one repeated element's sub-chain.
	NodeTypeElement = "ELEMENT"
)

// GraphGroup holds the child elements of a repeat or fork instance.
type GraphGroup struct {
	ID       string       `json:"id"`
	Name     string       `json:"name,omitempty"`
	Elements []*GraphNode `json:"elements"`
}

// GraphNode is one node of the rendered execution graph. The graph is
// request-scoped: built fresh on every render and never persisted. Next
// points at the sibling that ran after this node; Group holds child elements
// for repeat and fork instances.
type GraphNode struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	Rollback bool            `json:"rollback,omitempty"`
	Status   ExecutionStatus `json:"status,omitempty"`
	StartTs  *time.Time      `json:"start_ts,omitempty"`
	EndTs    *time.Time      `json:"end_ts,omitempty"`

	// ExecutionSummary holds the per-status instance counts of a
	// synthesized aggregate node.
	ExecutionSummary map[ExecutionStatus]int `json:"execution_summary,omitempty"`

	ExecutionDetails StateExecutionData `json:"execution_details,omitempty"`

	Group *GraphGroup `json:"group,omitempty"`
	Next  *GraphNode  `json:"next,omitempty"`
}
