// Package events defines event types and structures for workflow execution notifications.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries every execution event.
const Topic = "flowrun.workflow.executions"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Workflow execution lifecycle events.
	WorkflowExecutionRequestedEvent EventType = "workflow.execution.requested"
	WorkflowExecutionStartedEvent   EventType = "workflow.execution.started"
	WorkflowExecutionCompletedEvent EventType = "workflow.execution.completed"
	WorkflowExecutionFailedEvent    EventType = "workflow.execution.failed"

	// Node events.
	NodeExecutionFinishedEvent EventType = "node.execution.finished"
	NodeExecutionFailedEvent   EventType = "node.execution.failed"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	WorkerID   string         `json:"worker_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// WorkflowExecutionRequested asks a worker to run a pending execution record.
type WorkflowExecutionRequested struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	UserID      string `json:"user_id"`
}

func (w WorkflowExecutionRequested) GetType() EventType {
	return WorkflowExecutionRequestedEvent
}

type WorkflowExecutionStarted struct {
	BaseEvent

	ExecutionID  string         `json:"execution_id"`
	WorkflowName string         `json:"workflow_name"`
	UserID       string         `json:"user_id"`
	InputData    map[string]any `json:"input_data,omitempty"`
}

func (w WorkflowExecutionStarted) GetType() EventType {
	return WorkflowExecutionStartedEvent
}

type WorkflowExecutionCompleted struct {
	BaseEvent

	ExecutionID   string         `json:"execution_id"`
	Status        string         `json:"status"`
	DurationMs    int64          `json:"duration_ms"`
	NodesExecuted int            `json:"nodes_executed"`
	FinalResults  map[string]any `json:"final_results"`
}

func (w WorkflowExecutionCompleted) GetType() EventType {
	return WorkflowExecutionCompletedEvent
}

type WorkflowExecutionFailed struct {
	BaseEvent

	ExecutionID    string         `json:"execution_id"`
	Status         string         `json:"status"`
	DurationMs     int64          `json:"duration_ms"`
	Error          WorkflowError  `json:"error"`
	NodesExecuted  int            `json:"nodes_executed"`
	PartialResults map[string]any `json:"partial_results"`
}

type WorkflowError struct {
	NodeID  string `json:"node_id,omitempty"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (w WorkflowExecutionFailed) GetType() EventType {
	return WorkflowExecutionFailedEvent
}

type NodeExecutionFinished struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	NodeID      string         `json:"node_id"`
	Integration string         `json:"integration"`
	OutputData  map[string]any `json:"output_data"`
	Duration    time.Duration  `json:"duration"`
}

func (n NodeExecutionFinished) GetType() EventType {
	return NodeExecutionFinishedEvent
}

type NodeExecutionFailed struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	NodeID      string        `json:"node_id"`
	Integration string        `json:"integration"`
	Error       string        `json:"error"`
	Duration    time.Duration `json:"duration"`
}

func (n NodeExecutionFailed) GetType() EventType {
	return NodeExecutionFailedEvent
}

// New returns an empty event of the given type, ready to be decoded into.
func New(eventType EventType) (any, bool) {
	switch eventType {
	case WorkflowExecutionRequestedEvent:
		return &WorkflowExecutionRequested{}, true
	case WorkflowExecutionStartedEvent:
		return &WorkflowExecutionStarted{}, true
	case WorkflowExecutionCompletedEvent:
		return &WorkflowExecutionCompleted{}, true
	case WorkflowExecutionFailedEvent:
		return &WorkflowExecutionFailed{}, true
	case NodeExecutionFinishedEvent:
		return &NodeExecutionFinished{}, true
	case NodeExecutionFailedEvent:
		return &NodeExecutionFailed{}, true
	default:
		return nil, false
	}
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		Metadata:   make(map[string]any),
	}
}
