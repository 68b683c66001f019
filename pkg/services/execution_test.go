package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/flowrun/pkg/executors/gohighlevel"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/persistence/file"
	"github.com/dukex/flowrun/pkg/registry"
	"github.com/dukex/flowrun/pkg/workflow"
)

type rateLimitedClient struct {
	*gohighlevel.MockClient
}

func (rateLimitedClient) SendSMS(context.Context, gohighlevel.SMSRequest) (*gohighlevel.SMSResponse, error) {
	return nil, errors.New("rate limited")
}

func newExecutionService(t *testing.T, client gohighlevel.Client) (*Execution, *Workflow) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := file.NewPersistence(t.TempDir())

	reg := registry.NewRegistry(logger)
	require.NoError(t, reg.RegisterDefaultExecutors(t.Context(), client))

	workflows := NewWorkflow(p, reg)
	runner := workflow.NewRunner(p, reg, logger)

	return NewExecution(runner, workflows), workflows
}

func TestExecution_ExecuteCompletes(t *testing.T) {
	executions, workflows := newExecutionService(t, gohighlevel.NewMockClient())

	wf, err := workflows.Create(t.Context(), leadWorkflow("Lead follow-up"))
	require.NoError(t, err)

	record, err := executions.Execute(t.Context(), ExecuteRequest{
		WorkflowID: wf.ID,
		InputData:  map[string]any{"webhookData": map[string]any{"phone": "+15551234567", "firstName": "Ada"}},
	})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, record.Status)
	assert.Equal(t, "user-1", record.UserID)
	assert.Equal(t, map[string]any{"messageId": "mock-msg-789", "status": "sent"}, record.OutputData)

	fetched, err := executions.Get(t.Context(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.ID, fetched.ID)

	listed, err := executions.ListByWorkflow(t.Context(), wf.ID, 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, record.ID, listed[0].ID)
}

func TestExecution_ExecuteFailureReturnsRecord(t *testing.T) {
	executions, workflows := newExecutionService(t, rateLimitedClient{gohighlevel.NewMockClient()})

	wf, err := workflows.Create(t.Context(), leadWorkflow("Lead follow-up"))
	require.NoError(t, err)

	record, err := executions.Execute(t.Context(), ExecuteRequest{
		WorkflowID: wf.ID,
		UserID:     "caller",
		InputData:  map[string]any{"webhookData": map[string]any{"phone": "+15551234567"}},
	})
	require.Error(t, err)
	assert.True(t, workflow.IsRunError(err, workflow.KindExecutor))

	require.NotNil(t, record)
	assert.Equal(t, models.ExecutionStatusFailed, record.Status)
	assert.Equal(t, "caller", record.UserID)
	require.NotNil(t, record.Error)
	assert.Equal(t, "rate limited", *record.Error)
}

func TestExecution_ExecuteUnknownWorkflow(t *testing.T) {
	executions, _ := newExecutionService(t, gohighlevel.NewMockClient())

	record, err := executions.Execute(t.Context(), ExecuteRequest{WorkflowID: "missing"})
	require.Error(t, err)
	assert.Nil(t, record)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestExecution_AsyncWithoutEventBus(t *testing.T) {
	executions, workflows := newExecutionService(t, gohighlevel.NewMockClient())

	wf, err := workflows.Create(t.Context(), leadWorkflow("Lead follow-up"))
	require.NoError(t, err)

	_, err = executions.Execute(t.Context(), ExecuteRequest{WorkflowID: wf.ID, Async: true})
	require.ErrorIs(t, err, workflow.ErrNoEventBus)
}

func TestExecution_GetMissing(t *testing.T) {
	executions, _ := newExecutionService(t, gohighlevel.NewMockClient())

	_, err := executions.Get(t.Context(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExecutionNotFound)
}

func TestExecution_ListByWorkflowValidation(t *testing.T) {
	executions, _ := newExecutionService(t, gohighlevel.NewMockClient())

	_, err := executions.ListByWorkflow(t.Context(), "wf", -1)
	require.ErrorIs(t, err, ErrInvalidLimit)
	assert.True(t, IsValidationError(err))

	_, err = executions.ListByWorkflow(t.Context(), "missing", 5)
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
}
