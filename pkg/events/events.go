// Package events defines the event types exchanged between the API, the
// dispatcher and the state-machine executor.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/runwayci/runway/pkg/models"
)

type EventType string

// Topic is the Kafka topic all execution lifecycle events flow through.
const Topic = "runway.executions"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Execution lifecycle events.
	ExecutionQueuedEvent   EventType = "execution.queued"
	ExecutionStartedEvent  EventType = "execution.started"
	ExecutionFinishedEvent EventType = "execution.finished"

	// Commands addressed to the state-machine executor.
	ExecutionStartRequestedEvent EventType = "execution.start.requested"
	InterruptRegisteredEvent     EventType = "execution.interrupt.registered"
)

type BaseEvent struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	AppID       string         `json:"app_id"`
	ExecutionID string         `json:"execution_id"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, appID, executionID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AppID:       appID,
		ExecutionID: executionID,
		Metadata:    make(map[string]any),
	}
}

// ExecutionQueued is emitted when a trigger parks a run behind an already
// active one. The dispatcher promotes queued runs when their predecessor
// finishes.
type ExecutionQueued struct {
	BaseEvent

	WorkflowID string `json:"workflow_id"`
}

func (e ExecutionQueued) GetType() EventType {
	return ExecutionQueuedEvent
}

// ExecutionStarted is emitted when a run moves to RUNNING.
type ExecutionStarted struct {
	BaseEvent

	WorkflowID string `json:"workflow_id"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

// ExecutionFinished is emitted when a run reaches a final status.
type ExecutionFinished struct {
	BaseEvent

	WorkflowID string                 `json:"workflow_id"`
	Status     models.ExecutionStatus `json:"status"`
}

func (e ExecutionFinished) GetType() EventType {
	return ExecutionFinishedEvent
}

// ExecutionStartRequested asks the state-machine executor to begin driving a
// run that was already moved to RUNNING.
type ExecutionStartRequested struct {
	BaseEvent

	WorkflowID     string `json:"workflow_id"`
	StateMachineID string `json:"state_machine_id,omitempty"`
}

func (e ExecutionStartRequested) GetType() EventType {
	return ExecutionStartRequestedEvent
}

// InterruptRegistered notifies the executor that an interrupt was persisted
// for one of its runs.
type InterruptRegistered struct {
	BaseEvent

	InterruptID              string               `json:"interrupt_id"`
	InterruptType            models.InterruptType `json:"interrupt_type"`
	StateExecutionInstanceID string               `json:"state_execution_instance_id,omitempty"`
}

func (e InterruptRegistered) GetType() EventType {
	return InterruptRegisteredEvent
}
