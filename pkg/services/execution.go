package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/workflow"
)

// ErrExecutionNotFound is returned when an execution record is not found.
var ErrExecutionNotFound = persistence.ErrExecutionNotFound

// ExecuteRequest asks for one run of a workflow.
type ExecuteRequest struct {
	WorkflowID     string
	UserID         string
	InputData      map[string]any
	IdempotencyKey string
	// Async enqueues the run for a worker instead of running it in the caller.
	Async bool
}

type Execution struct {
	runner    *workflow.Runner
	workflows *Workflow
}

func NewExecution(runner *workflow.Runner, workflows *Workflow) *Execution {
	return &Execution{runner: runner, workflows: workflows}
}

// Execute starts a run and returns its record. A synchronous run that failed
// returns the failed record together with a *workflow.RunError.
func (e *Execution) Execute(ctx context.Context, req ExecuteRequest) (*models.ExecutionRecord, error) {
	wf, err := e.workflows.FetchByID(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}

	runReq := workflow.RunRequest{
		WorkflowID:     wf.ID,
		UserID:         req.UserID,
		InputData:      req.InputData,
		IdempotencyKey: req.IdempotencyKey,
	}

	if runReq.UserID == "" {
		runReq.UserID = wf.OwnerID
	}

	var (
		executionID string
		runErr      error
	)

	if req.Async {
		executionID, runErr = e.runner.Enqueue(ctx, runReq)
	} else {
		executionID, runErr = e.runner.ExecuteWorkflow(ctx, runReq)
	}

	if executionID == "" {
		return nil, runErr
	}

	record, err := e.runner.GetExecutionStatus(ctx, executionID)
	if err != nil {
		return nil, errors.Join(runErr, fmt.Errorf("failed to load execution %s: %w", executionID, err))
	}

	return record, runErr
}

// Get returns an execution record.
func (e *Execution) Get(ctx context.Context, executionID string) (*models.ExecutionRecord, error) {
	return e.runner.GetExecutionStatus(ctx, executionID)
}

// ListByWorkflow returns the newest executions of a workflow. Zero means the default limit.
func (e *Execution) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.ExecutionRecord, error) {
	if limit < 0 || limit > maxListLimit {
		return nil, NewValidationError(
			"ListByWorkflow",
			"INVALID_LIMIT",
			fmt.Sprintf("limit must be between 0 and %d", maxListLimit),
			ErrInvalidLimit,
		)
	}

	if _, err := e.workflows.FetchByID(ctx, workflowID); err != nil {
		return nil, err
	}

	return e.runner.GetWorkflowExecutions(ctx, workflowID, limit)
}
