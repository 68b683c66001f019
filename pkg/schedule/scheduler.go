// Package schedule fires workflows whose schedule-trigger nodes carry a cron expression.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	scheduletrigger "github.com/dukex/flowrun/pkg/executors/schedule"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/workflow"
)

// Enqueuer hands a run request over to the workers.
type Enqueuer interface {
	Enqueue(ctx context.Context, req workflow.RunRequest) (string, error)
}

type job struct {
	entryID    cron.EntryID
	expression string
}

// Scheduler keeps one cron entry per schedule-trigger node of the stored workflows.
type Scheduler struct {
	workflows persistence.WorkflowRepository
	enqueuer  Enqueuer
	logger    *slog.Logger
	cron      *cron.Cron
	now       func() time.Time

	mu   sync.Mutex
	jobs map[string]job
	ctx  context.Context
}

func NewScheduler(workflows persistence.WorkflowRepository, enqueuer Enqueuer, logger *slog.Logger) *Scheduler {
	logger = logger.With("module", "schedule_dispatcher")
	cronLog := cronLogger{logger: logger}

	return &Scheduler{
		workflows: workflows,
		enqueuer:  enqueuer,
		logger:    logger,
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cronLog),
			cron.Recover(cronLog),
		)),
		now:  time.Now,
		jobs: make(map[string]job),
		ctx:  context.Background(),
	}
}

func jobKey(workflowID, nodeID string) string {
	return workflowID + "/" + nodeID
}

type trigger struct {
	workflowID string
	ownerID    string
	nodeID     string
	expression string
}

// Sync reconciles the cron entries with the schedule-trigger nodes currently stored.
// Nodes with a missing or invalid expression are skipped with a warning.
func (s *Scheduler) Sync(ctx context.Context) error {
	workflows, err := s.workflows.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to list workflows: %w", err)
	}

	desired := make(map[string]trigger)

	for _, wf := range workflows {
		for _, node := range wf.Definition.NodesByIntegration(scheduletrigger.Integration) {
			expression := node.Data.GetString("cron")
			if expression == "" {
				continue
			}

			if _, err := scheduletrigger.ParseCron(expression); err != nil {
				s.logger.WarnContext(ctx, "Skipping schedule trigger", "workflow_id", wf.ID, "node_id", node.ID, "error", err)

				continue
			}

			desired[jobKey(wf.ID, node.ID)] = trigger{
				workflowID: wf.ID,
				ownerID:    wf.OwnerID,
				nodeID:     node.ID,
				expression: expression,
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, existing := range s.jobs {
		if t, ok := desired[key]; ok && t.expression == existing.expression {
			delete(desired, key)

			continue
		}

		s.cron.Remove(existing.entryID)
		delete(s.jobs, key)
		s.logger.InfoContext(ctx, "Removed schedule", "job", key)
	}

	for key, t := range desired {
		entryID, err := s.cron.AddFunc(t.expression, func() {
			s.fire(t.workflowID, t.ownerID, t.nodeID, t.expression)
		})
		if err != nil {
			s.logger.WarnContext(ctx, "Failed to add schedule", "job", key, "error", err)

			continue
		}

		s.jobs[key] = job{entryID: entryID, expression: t.expression}
		s.logger.InfoContext(ctx, "Added schedule", "job", key, "cron", t.expression)
	}

	return nil
}

// Start runs the cron loop. Enqueued runs use ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.InfoContext(ctx, "Schedule dispatcher started", "jobs", len(s.Jobs()))
}

// Stop halts the cron loop and waits for firing jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		s.logger.InfoContext(ctx, "Schedule dispatcher stopped")

		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Jobs returns the registered "<workflowId>/<nodeId>" keys, sorted.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.jobs))
	for key := range s.jobs {
		keys = append(keys, key)
	}

	slices.Sort(keys)

	return keys
}

// fire enqueues one run of the workflow. The idempotency key is bound to the
// firing second so several schedulers sharing a store enqueue a tick once.
func (s *Scheduler) fire(workflowID, ownerID, nodeID, expression string) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	firedAt := s.now().UTC()

	req := workflow.RunRequest{
		WorkflowID: workflowID,
		UserID:     ownerID,
		InputData: map[string]any{
			scheduletrigger.DataVariable: map[string]any{
				"cron":    expression,
				"nodeId":  nodeID,
				"firedAt": firedAt.Format(time.RFC3339),
			},
		},
		IdempotencyKey: fmt.Sprintf("schedule:%s:%s", nodeID, firedAt.Truncate(time.Second).Format(time.RFC3339)),
	}

	executionID, err := s.enqueuer.Enqueue(ctx, req)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to enqueue scheduled run", "workflow_id", workflowID, "node_id", nodeID, "error", err)

		return
	}

	s.logger.InfoContext(ctx, "Enqueued scheduled run", "workflow_id", workflowID, "node_id", nodeID, "execution_id", executionID)
}

// cronLogger routes robfig/cron diagnostics to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
