// Package workflow runs stored workflow graphs and records their executions.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/flowrun/pkg/eventbus"
	"github.com/dukex/flowrun/pkg/events"
	"github.com/dukex/flowrun/pkg/graph"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/otelhelper"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/protocol"
)

// ExecutorResolver finds the executor responsible for a node.
type ExecutorResolver interface {
	Resolve(node *models.Node) (protocol.NodeExecutor, bool)
}

// RunRequest asks for one run of a stored workflow.
type RunRequest struct {
	WorkflowID string
	UserID     string
	InputData  map[string]any
	// IdempotencyKey, when set, makes a repeated request return the execution
	// already recorded for the same workflow and key.
	IdempotencyKey string
}

// RunnerConfig tunes how runs are executed.
type RunnerConfig struct {
	// RunTimeout bounds a whole run. Zero means no limit.
	RunTimeout time.Duration
	// NodeTimeout bounds each executor call. Zero means no limit.
	NodeTimeout time.Duration
	// StrictGraph fails runs whose graph has nodes that can never become ready
	// instead of running the reachable subset.
	StrictGraph bool
	// NamespacedOutputs also keeps every node output under variables["nodes"][<nodeId>].
	NamespacedOutputs bool
	// PersistLogsOnFailure writes the accumulated logs together with the failed status.
	PersistLogsOnFailure bool
}

// DefaultRunnerConfig returns the configuration used when none is given.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{PersistLogsOnFailure: true}
}

type Option func(*Runner)

// WithEventBus publishes lifecycle events and enables Enqueue.
func WithEventBus(bus eventbus.EventPublisher) Option {
	return func(r *Runner) {
		r.eventBus = bus
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runner) {
		r.tracer = tracer
	}
}

func WithConfig(config RunnerConfig) Option {
	return func(r *Runner) {
		r.config = config
	}
}

// Runner executes workflows one node at a time in topological order.
// It keeps no per-run state, so one Runner serves any number of concurrent runs.
type Runner struct {
	persistence persistence.Persistence
	resolver    ExecutorResolver
	logger      *slog.Logger
	eventBus    eventbus.EventPublisher
	tracer      trace.Tracer
	config      RunnerConfig
	now         func() time.Time
}

func NewRunner(p persistence.Persistence, resolver ExecutorResolver, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		persistence: p,
		resolver:    resolver,
		logger:      logger.With("module", "workflow_runner"),
		tracer:      otel.Tracer("github.com/dukex/flowrun/pkg/workflow"),
		config:      DefaultRunnerConfig(),
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// ExecuteWorkflow creates a running execution record and runs the workflow to
// completion before returning. A failed run returns its execution id together
// with the error recorded on it.
func (r *Runner) ExecuteWorkflow(ctx context.Context, req RunRequest) (string, error) {
	record, existing, err := r.prepare(ctx, req, models.ExecutionStatusRunning)
	if err != nil {
		return "", err
	}

	if existing != nil {
		return existing.ID, nil
	}

	return record.ID, r.run(ctx, record)
}

// Enqueue creates a pending execution record and publishes a request for a
// worker to run it. It returns without waiting for the run.
func (r *Runner) Enqueue(ctx context.Context, req RunRequest) (string, error) {
	if r.eventBus == nil {
		return "", ErrNoEventBus
	}

	record, existing, err := r.prepare(ctx, req, models.ExecutionStatusPending)
	if err != nil {
		return "", err
	}

	if existing != nil {
		return existing.ID, nil
	}

	event := events.WorkflowExecutionRequested{
		BaseEvent:   events.NewBaseEvent(events.WorkflowExecutionRequestedEvent, req.WorkflowID),
		ExecutionID: record.ID,
		UserID:      req.UserID,
	}

	if err := r.eventBus.Publish(ctx, req.WorkflowID, event); err != nil {
		publishErr := fmt.Errorf("failed to publish execution request: %w", err)

		message := publishErr.Error()
		completedAt := r.now().UTC()

		updateErr := r.persistence.ExecutionRepository().Update(context.WithoutCancel(ctx), record.ID, models.ExecutionUpdate{
			Status:      models.ExecutionStatusFailed,
			CompletedAt: &completedAt,
			Error:       &message,
		})

		return record.ID, errors.Join(publishErr, updateErr)
	}

	r.logger.InfoContext(ctx, "Enqueued workflow execution", "workflow_id", req.WorkflowID, "execution_id", record.ID)

	return record.ID, nil
}

// RunPending runs an execution record created by Enqueue. Records that already
// left the pending state are skipped, so a redelivered request never re-runs
// an execution.
func (r *Runner) RunPending(ctx context.Context, executionID string) error {
	record, err := r.persistence.ExecutionRepository().GetByID(ctx, executionID)
	if err != nil {
		return fmt.Errorf("failed to load execution %s: %w", executionID, err)
	}

	if record.Status != models.ExecutionStatusPending {
		r.logger.InfoContext(ctx, "Skipping execution that is not pending",
			"execution_id", executionID,
			"status", record.Status,
		)

		return nil
	}

	startedAt := r.now().UTC()

	err = r.persistence.ExecutionRepository().Update(ctx, executionID, models.ExecutionUpdate{
		Status:    models.ExecutionStatusRunning,
		StartedAt: &startedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to start execution %s: %w", executionID, err)
	}

	record.Status = models.ExecutionStatusRunning
	record.StartedAt = startedAt

	return r.run(ctx, record)
}

// GetExecutionStatus returns the stored execution record.
func (r *Runner) GetExecutionStatus(ctx context.Context, executionID string) (*models.ExecutionRecord, error) {
	return r.persistence.ExecutionRepository().GetByID(ctx, executionID)
}

// GetWorkflowExecutions lists the newest executions of a workflow. A
// non-positive limit means persistence.DefaultExecutionListLimit.
func (r *Runner) GetWorkflowExecutions(ctx context.Context, workflowID string, limit int) ([]*models.ExecutionRecord, error) {
	return r.persistence.ExecutionRepository().ListByWorkflow(ctx, workflowID, persistence.NormalizeLimit(limit))
}

// prepare creates the execution record for req in the given status. When the
// idempotency key of req is already recorded, the existing record is returned
// instead and nothing is created.
func (r *Runner) prepare(ctx context.Context, req RunRequest, status models.ExecutionStatus) (*models.ExecutionRecord, *models.ExecutionRecord, error) {
	existing, err := r.findIdempotent(ctx, req)
	if err != nil || existing != nil {
		return nil, existing, err
	}

	record := r.newRecord(req, status)

	existing, err = r.createRecord(ctx, req, record)
	if err != nil || existing != nil {
		return nil, existing, err
	}

	return record, nil, nil
}

func (r *Runner) newRecord(req RunRequest, status models.ExecutionStatus) *models.ExecutionRecord {
	input := req.InputData
	if input == nil {
		input = map[string]any{}
	}

	return &models.ExecutionRecord{
		WorkflowID:     req.WorkflowID,
		UserID:         req.UserID,
		Status:         status,
		InputData:      input,
		Logs:           []models.ExecutionLog{},
		IdempotencyKey: req.IdempotencyKey,
		StartedAt:      r.now().UTC(),
	}
}

func (r *Runner) findIdempotent(ctx context.Context, req RunRequest) (*models.ExecutionRecord, error) {
	if req.IdempotencyKey == "" {
		return nil, nil
	}

	existing, err := r.persistence.ExecutionRepository().GetByIdempotencyKey(ctx, req.WorkflowID, req.IdempotencyKey)
	if err != nil {
		if persistence.IsExecutionNotFound(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to check idempotency key: %w", err)
	}

	r.logger.InfoContext(ctx, "Returning existing execution for idempotency key",
		"workflow_id", req.WorkflowID,
		"execution_id", existing.ID,
	)

	return existing, nil
}

// createRecord inserts the record. When a concurrent request with the same
// idempotency key won the insert, the winner's record is returned instead.
func (r *Runner) createRecord(ctx context.Context, req RunRequest, record *models.ExecutionRecord) (*models.ExecutionRecord, error) {
	err := r.persistence.ExecutionRepository().Create(ctx, record)
	if err == nil {
		return nil, nil
	}

	if persistence.IsDuplicateIdempotencyKey(err) {
		if existing, findErr := r.findIdempotent(ctx, req); findErr == nil && existing != nil {
			return existing, nil
		}
	}

	return nil, fmt.Errorf("failed to create execution record: %w", err)
}

// run executes a record already in the running state and writes its terminal state.
func (r *Runner) run(ctx context.Context, record *models.ExecutionRecord) error {
	if r.config.RunTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, r.config.RunTimeout)
		defer cancel()
	}

	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "workflow.run",
		attribute.String(otelhelper.WorkflowIDKey, record.WorkflowID),
		attribute.String(otelhelper.ExecutionIDKey, record.ID),
	)
	defer span.End()

	logger := r.logger.With("workflow_id", record.WorkflowID, "execution_id", record.ID)
	execCtx := models.NewExecutionContext(record.WorkflowID, record.ID, record.UserID, record.InputData)

	workflow, err := r.loadDefinition(ctx, record.WorkflowID)
	if err != nil {
		return r.fail(ctx, span, logger, record, execCtx, &RunError{Kind: KindDefinitionLoad, Err: err}, 0)
	}

	span.SetAttributes(attribute.String(otelhelper.WorkflowNameKey, workflow.Name))
	logger.InfoContext(ctx, "Starting workflow execution", "nodes", len(workflow.Definition.Nodes))

	r.publish(ctx, logger, record.WorkflowID, events.WorkflowExecutionStarted{
		BaseEvent:    events.NewBaseEvent(events.WorkflowExecutionStartedEvent, record.WorkflowID),
		ExecutionID:  record.ID,
		WorkflowName: workflow.Name,
		UserID:       record.UserID,
		InputData:    record.InputData,
	})

	schedule := graph.Order(workflow.Definition.Nodes, workflow.Definition.Edges)
	if len(schedule.Excluded) > 0 {
		if r.config.StrictGraph {
			return r.fail(ctx, span, logger, record, execCtx, &RunError{Kind: KindCyclicGraph, Err: schedule.Err()}, 0)
		}

		execCtx.Warning("", "Nodes excluded from execution because they are part of a cycle: "+
			strings.Join(schedule.Excluded, ", "), map[string]any{"nodeIds": schedule.Excluded})
		logger.WarnContext(ctx, "Workflow graph has a cycle, running the reachable nodes", "excluded", schedule.Excluded)
	}

	lastOutput := models.NodeOutput{}
	nodesExecuted := 0

	for _, nodeID := range schedule.Order {
		node, ok := workflow.Definition.NodeByID(nodeID)
		if !ok {
			continue
		}

		if err := ctx.Err(); err != nil {
			execCtx.Error(node.ID, fmt.Sprintf("Run aborted before node %s: %v", node.ID, err), nil)

			return r.fail(ctx, span, logger, record, execCtx, &RunError{Kind: KindCancelled, NodeID: node.ID, Err: err}, nodesExecuted)
		}

		execCtx.Merge(lastOutput)

		executor, ok := r.resolver.Resolve(node)
		if !ok {
			execCtx.Warning(node.ID, "No executor found for integration: "+node.Data.Integration, nil)
			logger.WarnContext(ctx, "No executor found", "node_id", node.ID, "integration", node.Data.Integration)

			continue
		}

		nodesExecuted++

		output, err := r.executeNode(ctx, logger, record, node, executor, execCtx)
		if err != nil {
			execCtx.Error(node.ID, fmt.Sprintf("Node %s failed: %v", node.ID, err), nil)

			return r.fail(ctx, span, logger, record, execCtx, &RunError{Kind: KindExecutor, NodeID: node.ID, Err: err}, nodesExecuted)
		}

		if output == nil {
			output = models.NodeOutput{}
		}

		if r.config.NamespacedOutputs {
			execCtx.MergeNamespaced(node.ID, output)
		}

		lastOutput = output
	}

	return r.complete(ctx, logger, record, execCtx, lastOutput, nodesExecuted)
}

func (r *Runner) loadDefinition(ctx context.Context, workflowID string) (*models.Workflow, error) {
	workflow, err := r.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if err := graph.Validate(workflow.Definition); err != nil {
		return nil, err
	}

	return workflow, nil
}

func (r *Runner) executeNode(
	ctx context.Context,
	logger *slog.Logger,
	record *models.ExecutionRecord,
	node *models.Node,
	executor protocol.NodeExecutor,
	execCtx *models.ExecutionContext,
) (models.NodeOutput, error) {
	nodeCtx, span := otelhelper.StartSpan(ctx, r.tracer, "workflow.node",
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeIntegrationKey, node.Data.Integration),
	)
	defer span.End()

	if r.config.NodeTimeout > 0 {
		var cancel context.CancelFunc

		nodeCtx, cancel = context.WithTimeout(nodeCtx, r.config.NodeTimeout)
		defer cancel()
	}

	started := r.now()

	logger.DebugContext(ctx, "Executing node", "node_id", node.ID, "integration", node.Data.Integration, "module_type", node.Data.ModuleType)

	output, err := executor.Execute(nodeCtx, node, execCtx)
	duration := r.now().Sub(started)

	if err != nil {
		otelhelper.SetError(span, err, attribute.String(otelhelper.NodeIDKey, node.ID))
		logger.ErrorContext(ctx, "Node failed", "node_id", node.ID, "error", err)

		r.publish(ctx, logger, record.WorkflowID, events.NodeExecutionFailed{
			BaseEvent:   events.NewBaseEvent(events.NodeExecutionFailedEvent, record.WorkflowID),
			ExecutionID: record.ID,
			NodeID:      node.ID,
			Integration: node.Data.Integration,
			Error:       err.Error(),
			Duration:    duration,
		})

		return nil, err
	}

	r.publish(ctx, logger, record.WorkflowID, events.NodeExecutionFinished{
		BaseEvent:   events.NewBaseEvent(events.NodeExecutionFinishedEvent, record.WorkflowID),
		ExecutionID: record.ID,
		NodeID:      node.ID,
		Integration: node.Data.Integration,
		OutputData:  output,
		Duration:    duration,
	})

	return output, nil
}

func (r *Runner) complete(
	ctx context.Context,
	logger *slog.Logger,
	record *models.ExecutionRecord,
	execCtx *models.ExecutionContext,
	lastOutput models.NodeOutput,
	nodesExecuted int,
) error {
	writeCtx := context.WithoutCancel(ctx)
	completedAt := r.now().UTC()

	err := r.persistence.ExecutionRepository().Update(writeCtx, record.ID, models.ExecutionUpdate{
		Status:      models.ExecutionStatusCompleted,
		CompletedAt: &completedAt,
		Logs:        execCtx.Logs(),
		OutputData:  lastOutput,
	})
	if err != nil {
		return fmt.Errorf("failed to record completed execution %s: %w", record.ID, err)
	}

	err = r.persistence.WorkflowRepository().UpdateStats(writeCtx, record.WorkflowID, completedAt)
	if err != nil {
		return fmt.Errorf("failed to update workflow stats %s: %w", record.WorkflowID, err)
	}

	logger.InfoContext(ctx, "Workflow execution completed", "nodes_executed", nodesExecuted)

	r.publish(ctx, logger, record.WorkflowID, events.WorkflowExecutionCompleted{
		BaseEvent:     events.NewBaseEvent(events.WorkflowExecutionCompletedEvent, record.WorkflowID),
		ExecutionID:   record.ID,
		Status:        string(models.ExecutionStatusCompleted),
		DurationMs:    completedAt.Sub(record.StartedAt).Milliseconds(),
		NodesExecuted: nodesExecuted,
		FinalResults:  lastOutput,
	})

	return nil
}

func (r *Runner) fail(
	ctx context.Context,
	span trace.Span,
	logger *slog.Logger,
	record *models.ExecutionRecord,
	execCtx *models.ExecutionContext,
	runErr *RunError,
	nodesExecuted int,
) error {
	otelhelper.SetError(span, runErr, attribute.String("flowrun.error.kind", string(runErr.Kind)))
	logger.ErrorContext(ctx, "Workflow execution failed", "kind", runErr.Kind, "node_id", runErr.NodeID, "error", runErr)

	message := runErr.Error()
	completedAt := r.now().UTC()
	update := models.ExecutionUpdate{
		Status:      models.ExecutionStatusFailed,
		CompletedAt: &completedAt,
		Error:       &message,
	}

	if r.config.PersistLogsOnFailure {
		update.Logs = execCtx.Logs()
	}

	var persistErr error
	if err := r.persistence.ExecutionRepository().Update(context.WithoutCancel(ctx), record.ID, update); err != nil {
		persistErr = fmt.Errorf("failed to record failed execution %s: %w", record.ID, err)
	}

	r.publish(ctx, logger, record.WorkflowID, events.WorkflowExecutionFailed{
		BaseEvent:   events.NewBaseEvent(events.WorkflowExecutionFailedEvent, record.WorkflowID),
		ExecutionID: record.ID,
		Status:      string(models.ExecutionStatusFailed),
		DurationMs:  completedAt.Sub(record.StartedAt).Milliseconds(),
		Error: events.WorkflowError{
			NodeID:  runErr.NodeID,
			Message: message,
			Code:    string(runErr.Kind),
		},
		NodesExecuted:  nodesExecuted,
		PartialResults: execCtx.Snapshot(),
	})

	if persistErr != nil {
		return errors.Join(runErr, persistErr)
	}

	return runErr
}

// publish sends a lifecycle event. Failures are logged and never affect the run.
func (r *Runner) publish(ctx context.Context, logger *slog.Logger, key string, event eventbus.Event) {
	if r.eventBus == nil {
		return
	}

	if err := r.eventBus.Publish(context.WithoutCancel(ctx), key, event); err != nil {
		logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
