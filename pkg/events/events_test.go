package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBaseEvent(t *testing.T) {
	base := NewBaseEvent(WorkflowExecutionStartedEvent, "wf-123")

	assert.NotEmpty(t, base.ID)
	assert.Equal(t, WorkflowExecutionStartedEvent, base.Type)
	assert.Equal(t, "wf-123", base.WorkflowID)
	assert.False(t, base.Timestamp.IsZero())
	assert.NotNil(t, base.Metadata)
}

func TestWorkflowExecutionRequested_JSON(t *testing.T) {
	original := WorkflowExecutionRequested{
		BaseEvent:   NewBaseEvent(WorkflowExecutionRequestedEvent, "wf-123"),
		ExecutionID: "exec-456",
		UserID:      "user-1",
	}

	jsonData, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), `"type":"workflow.execution.requested"`)
	assert.Contains(t, string(jsonData), `"execution_id":"exec-456"`)
	assert.Contains(t, string(jsonData), `"workflow_id":"wf-123"`)

	decoded, ok := New(WorkflowExecutionRequestedEvent)
	require.True(t, ok)
	require.NoError(t, json.Unmarshal(jsonData, decoded))

	requested, ok := decoded.(*WorkflowExecutionRequested)
	require.True(t, ok)
	assert.Equal(t, "exec-456", requested.ExecutionID)
	assert.Equal(t, "user-1", requested.UserID)
	assert.Equal(t, WorkflowExecutionRequestedEvent, requested.GetType())
}

func TestWorkflowExecutionFailed_ErrorShape(t *testing.T) {
	event := WorkflowExecutionFailed{
		BaseEvent:   NewBaseEvent(WorkflowExecutionFailedEvent, "wf-1"),
		ExecutionID: "exec-1",
		Status:      "failed",
		Error:       WorkflowError{NodeID: "B", Message: "rate limited", Code: "executor"},
	}

	jsonData, err := json.Marshal(event)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), `"error":{"node_id":"B","message":"rate limited","code":"executor"}`)
}

func TestNew(t *testing.T) {
	tests := []struct {
		eventType EventType
		want      any
	}{
		{WorkflowExecutionRequestedEvent, &WorkflowExecutionRequested{}},
		{WorkflowExecutionStartedEvent, &WorkflowExecutionStarted{}},
		{WorkflowExecutionCompletedEvent, &WorkflowExecutionCompleted{}},
		{WorkflowExecutionFailedEvent, &WorkflowExecutionFailed{}},
		{NodeExecutionFinishedEvent, &NodeExecutionFinished{}},
		{NodeExecutionFailedEvent, &NodeExecutionFailed{}},
	}

	for _, tc := range tests {
		t.Run(string(tc.eventType), func(t *testing.T) {
			got, ok := New(tc.eventType)
			require.True(t, ok)
			assert.IsType(t, tc.want, got)
		})
	}

	_, ok := New("workflow.unknown")
	assert.False(t, ok)
}
