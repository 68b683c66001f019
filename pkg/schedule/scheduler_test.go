package schedule

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dukex/flowrun/pkg/mocks"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence/file"
	"github.com/dukex/flowrun/pkg/workflow"
)

type recordingEnqueuer struct {
	mu       sync.Mutex
	requests []workflow.RunRequest
	err      error
}

func (e *recordingEnqueuer) Enqueue(_ context.Context, req workflow.RunRequest) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.requests = append(e.requests, req)

	return "exec-1", e.err
}

func (e *recordingEnqueuer) calls() []workflow.RunRequest {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]workflow.RunRequest(nil), e.requests...)
}

func scheduledWorkflow(id, expression string) *models.Workflow {
	return &models.Workflow{
		ID:      id,
		OwnerID: "owner-" + id,
		Name:    "scheduled " + id,
		Definition: models.Definition{
			Nodes: []*models.Node{
				{ID: "tick", Data: models.NodeData{Integration: "schedule-trigger", Config: map[string]any{"cron": expression}}},
				{ID: "log", Data: models.NodeData{Integration: "log"}},
			},
			Edges: []*models.Edge{{Source: "tick", Target: "log"}},
		},
	}
}

func newTestScheduler(t *testing.T) (*Scheduler, *file.Persistence, *recordingEnqueuer) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	enqueuer := &recordingEnqueuer{}
	scheduler := NewScheduler(store.WorkflowRepository(), enqueuer, slog.New(slog.NewTextHandler(io.Discard, nil)))

	return scheduler, store, enqueuer
}

func TestScheduler_SyncRegistersValidTriggers(t *testing.T) {
	scheduler, store, _ := newTestScheduler(t)
	repo := store.WorkflowRepository()

	require.NoError(t, repo.Save(t.Context(), scheduledWorkflow("wf-1", "*/5 * * * *")))
	require.NoError(t, repo.Save(t.Context(), scheduledWorkflow("wf-2", "not a cron")))
	require.NoError(t, repo.Save(t.Context(), scheduledWorkflow("wf-3", "")))

	require.NoError(t, scheduler.Sync(t.Context()))
	assert.Equal(t, []string{"wf-1/tick"}, scheduler.Jobs())
	assert.Len(t, scheduler.cron.Entries(), 1)
}

func TestScheduler_SyncReconciles(t *testing.T) {
	scheduler, store, _ := newTestScheduler(t)
	repo := store.WorkflowRepository()

	require.NoError(t, repo.Save(t.Context(), scheduledWorkflow("wf-1", "*/5 * * * *")))
	require.NoError(t, repo.Save(t.Context(), scheduledWorkflow("wf-2", "@hourly")))
	require.NoError(t, scheduler.Sync(t.Context()))
	assert.Equal(t, []string{"wf-1/tick", "wf-2/tick"}, scheduler.Jobs())

	first := scheduler.jobs["wf-1/tick"].entryID

	// Unchanged triggers keep their entry.
	require.NoError(t, scheduler.Sync(t.Context()))
	assert.Equal(t, first, scheduler.jobs["wf-1/tick"].entryID)

	require.NoError(t, repo.Save(t.Context(), scheduledWorkflow("wf-1", "@daily")))
	require.NoError(t, repo.Delete(t.Context(), "wf-2"))
	require.NoError(t, scheduler.Sync(t.Context()))

	assert.Equal(t, []string{"wf-1/tick"}, scheduler.Jobs())
	assert.Equal(t, "@daily", scheduler.jobs["wf-1/tick"].expression)
	assert.NotEqual(t, first, scheduler.jobs["wf-1/tick"].entryID)
	assert.Len(t, scheduler.cron.Entries(), 1)
}

func TestScheduler_SyncListError(t *testing.T) {
	repo := &mocks.MockWorkflowRepository{}
	repo.On("GetAll", mock.Anything).Return(nil, errors.New("db down"))

	scheduler := NewScheduler(repo, &recordingEnqueuer{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := scheduler.Sync(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestScheduler_FireEnqueuesScheduleData(t *testing.T) {
	scheduler, _, enqueuer := newTestScheduler(t)
	scheduler.now = func() time.Time {
		return time.Date(2026, 3, 1, 9, 30, 15, 500, time.UTC)
	}

	scheduler.fire("wf-1", "owner-1", "tick", "*/5 * * * *")

	calls := enqueuer.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "wf-1", calls[0].WorkflowID)
	assert.Equal(t, "owner-1", calls[0].UserID)
	assert.Equal(t, "schedule:tick:2026-03-01T09:30:15Z", calls[0].IdempotencyKey)
	assert.Equal(t, map[string]any{
		"scheduleData": map[string]any{
			"cron":    "*/5 * * * *",
			"nodeId":  "tick",
			"firedAt": "2026-03-01T09:30:15Z",
		},
	}, calls[0].InputData)
}

func TestScheduler_FireEnqueueErrorIsLogged(t *testing.T) {
	scheduler, _, enqueuer := newTestScheduler(t)
	enqueuer.err = errors.New("broker down")

	assert.NotPanics(t, func() {
		scheduler.fire("wf-1", "owner-1", "tick", "@hourly")
	})
	assert.Len(t, enqueuer.calls(), 1)
}

func TestScheduler_StartFiresJobs(t *testing.T) {
	scheduler, store, enqueuer := newTestScheduler(t)

	require.NoError(t, store.WorkflowRepository().Save(t.Context(), scheduledWorkflow("wf-1", "@every 1s")))
	require.NoError(t, scheduler.Sync(t.Context()))

	scheduler.Start(t.Context())

	assert.Eventually(t, func() bool {
		return len(enqueuer.calls()) > 0
	}, 5*time.Second, 50*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, scheduler.Stop(stopCtx))

	calls := enqueuer.calls()
	require.NotEmpty(t, calls)
	assert.Equal(t, "owner-wf-1", calls[0].UserID)
}
