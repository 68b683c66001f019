// Package persistencetest holds the behaviour every persistence adapter must share.
package persistencetest

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewWorkflow builds a two node workflow owned by ownerID.
func NewWorkflow(ownerID string) *models.Workflow {
	return &models.Workflow{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Name:        "Lead follow-up",
		Description: "Texts every new lead",
		Definition: models.Definition{
			Nodes: []*models.Node{
				{ID: "A", Type: "trigger", Data: models.NodeData{Integration: "webhook-trigger", Config: map[string]any{}}},
				{ID: "B", Type: "action", Data: models.NodeData{
					Integration: "gohighlevel-action",
					ModuleType:  "send-sms",
					Label:       "Send SMS",
					Config:      map[string]any{"message": "Hi {{ .vars.name }}"},
				}, Position: &models.Position{X: 120, Y: 40}},
			},
			Edges: []*models.Edge{{ID: "e1", Source: "A", Target: "B"}},
		},
	}
}

// NewRecord builds a running execution record for workflowID started at startedAt.
func NewRecord(workflowID string, startedAt time.Time) *models.ExecutionRecord {
	return &models.ExecutionRecord{
		WorkflowID: workflowID,
		UserID:     "user-1",
		Status:     models.ExecutionStatusRunning,
		InputData:  map[string]any{"webhookData": map[string]any{"phone": "+15551234567"}},
		Logs:       []models.ExecutionLog{},
		StartedAt:  startedAt.UTC().Truncate(time.Millisecond),
	}
}

// Run exercises the full persistence contract against the adapter built by factory.
// factory must return an empty store.
func Run(t *testing.T, factory func(t *testing.T) persistence.Persistence) {
	t.Helper()

	t.Run("workflow round trip", func(t *testing.T) {
		store := factory(t)
		repo := store.WorkflowRepository()
		workflow := NewWorkflow("owner-1")

		require.NoError(t, repo.Save(t.Context(), workflow))
		assert.False(t, workflow.CreatedAt.IsZero())

		loaded, err := repo.GetByID(t.Context(), workflow.ID)
		require.NoError(t, err)
		assert.Equal(t, workflow.Name, loaded.Name)
		assert.Equal(t, "owner-1", loaded.OwnerID)
		require.Len(t, loaded.Definition.Nodes, 2)
		assert.Equal(t, "send-sms", loaded.Definition.Nodes[1].Data.ModuleType)
		assert.Equal(t, "Hi {{ .vars.name }}", loaded.Definition.Nodes[1].Data.GetString("message"))
		require.Len(t, loaded.Definition.Edges, 1)
		assert.Equal(t, "B", loaded.Definition.Edges[0].Target)
	})

	t.Run("workflow not found", func(t *testing.T) {
		store := factory(t)

		_, err := store.WorkflowRepository().GetByID(t.Context(), uuid.NewString())
		require.Error(t, err)
		assert.True(t, persistence.IsWorkflowNotFound(err))
	})

	t.Run("workflow update, list and delete", func(t *testing.T) {
		store := factory(t)
		repo := store.WorkflowRepository()

		first := NewWorkflow("owner-1")
		second := NewWorkflow("owner-2")
		require.NoError(t, repo.Save(t.Context(), first))
		require.NoError(t, repo.Save(t.Context(), second))

		first.Name = "Renamed"
		require.NoError(t, repo.Save(t.Context(), first))

		all, err := repo.GetAll(t.Context())
		require.NoError(t, err)
		require.Len(t, all, 2)

		loaded, err := repo.GetByID(t.Context(), first.ID)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", loaded.Name)

		require.NoError(t, repo.Delete(t.Context(), first.ID))

		_, err = repo.GetByID(t.Context(), first.ID)
		assert.True(t, persistence.IsWorkflowNotFound(err))

		all, err = repo.GetAll(t.Context())
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("workflow stats", func(t *testing.T) {
		store := factory(t)
		repo := store.WorkflowRepository()
		workflow := NewWorkflow("owner-1")
		require.NoError(t, repo.Save(t.Context(), workflow))

		executedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		for range 3 {
			require.NoError(t, repo.UpdateStats(t.Context(), workflow.ID, executedAt))
		}

		loaded, err := repo.GetByID(t.Context(), workflow.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), loaded.ExecutionCount)
		require.NotNil(t, loaded.LastExecutedAt)
		assert.True(t, executedAt.Equal(*loaded.LastExecutedAt))
		assert.Len(t, loaded.Definition.Nodes, 2)

		err = repo.UpdateStats(t.Context(), uuid.NewString(), executedAt)
		assert.True(t, persistence.IsWorkflowNotFound(err))
	})

	t.Run("concurrent stats updates all count", func(t *testing.T) {
		store := factory(t)
		repo := store.WorkflowRepository()
		workflow := NewWorkflow("owner-1")
		require.NoError(t, repo.Save(t.Context(), workflow))

		var wg sync.WaitGroup

		errs := make(chan error, 10)

		for range 10 {
			wg.Add(1)

			go func() {
				defer wg.Done()

				if err := repo.UpdateStats(t.Context(), workflow.ID, time.Now()); err != nil {
					errs <- err
				}
			}()
		}

		wg.Wait()
		close(errs)

		for err := range errs {
			require.NoError(t, err)
		}

		loaded, err := repo.GetByID(t.Context(), workflow.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(10), loaded.ExecutionCount)
	})

	t.Run("execution lifecycle", func(t *testing.T) {
		store := factory(t)
		repo := store.ExecutionRepository()
		record := NewRecord(uuid.NewString(), time.Now())

		require.NoError(t, repo.Create(t.Context(), record))
		require.NotEmpty(t, record.ID)

		loaded, err := repo.GetByID(t.Context(), record.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionStatusRunning, loaded.Status)
		assert.Nil(t, loaded.CompletedAt)
		assert.Nil(t, loaded.Error)

		completedAt := time.Now().UTC().Truncate(time.Millisecond)
		logs := []models.ExecutionLog{
			{Timestamp: completedAt, NodeID: "A", Message: "Webhook trigger received data", Type: models.LogTypeInfo},
			{Timestamp: completedAt, NodeID: "B", Message: "SMS sent", Type: models.LogTypeSuccess, Data: map[string]any{"messageId": "mock-msg-789"}},
		}

		require.NoError(t, repo.Update(t.Context(), record.ID, models.ExecutionUpdate{
			Status:      models.ExecutionStatusCompleted,
			CompletedAt: &completedAt,
			Logs:        logs,
			OutputData:  map[string]any{"messageId": "mock-msg-789", "status": "sent"},
		}))

		loaded, err = repo.GetByID(t.Context(), record.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionStatusCompleted, loaded.Status)
		require.NotNil(t, loaded.CompletedAt)
		assert.True(t, completedAt.Equal(*loaded.CompletedAt))
		assert.Equal(t, map[string]any{"messageId": "mock-msg-789", "status": "sent"}, loaded.OutputData)
		require.Len(t, loaded.Logs, 2)
		assert.Equal(t, "B", loaded.Logs[1].NodeID)
		assert.Equal(t, models.LogTypeSuccess, loaded.Logs[1].Type)
		assert.Equal(t, map[string]any{"phone": "+15551234567"}, loaded.InputData["webhookData"])
	})

	t.Run("execution failure keeps other fields", func(t *testing.T) {
		store := factory(t)
		repo := store.ExecutionRepository()
		record := NewRecord(uuid.NewString(), time.Now())
		require.NoError(t, repo.Create(t.Context(), record))

		message := "rate limited"
		require.NoError(t, repo.Update(t.Context(), record.ID, models.ExecutionUpdate{
			Status: models.ExecutionStatusFailed,
			Error:  &message,
		}))

		loaded, err := repo.GetByID(t.Context(), record.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionStatusFailed, loaded.Status)
		require.NotNil(t, loaded.Error)
		assert.Equal(t, "rate limited", *loaded.Error)
		assert.Equal(t, "user-1", loaded.UserID)
	})

	t.Run("execution not found", func(t *testing.T) {
		store := factory(t)
		repo := store.ExecutionRepository()

		_, err := repo.GetByID(t.Context(), uuid.NewString())
		assert.True(t, persistence.IsExecutionNotFound(err))

		err = repo.Update(t.Context(), uuid.NewString(), models.ExecutionUpdate{Status: models.ExecutionStatusFailed})
		assert.True(t, persistence.IsExecutionNotFound(err))
	})

	t.Run("list executions newest first with limit", func(t *testing.T) {
		store := factory(t)
		repo := store.ExecutionRepository()
		workflowID := uuid.NewString()
		base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

		ids := make([]string, 0, 12)

		for i := range 12 {
			record := NewRecord(workflowID, base.Add(time.Duration(i)*time.Minute))
			require.NoError(t, repo.Create(t.Context(), record))
			ids = append(ids, record.ID)
		}

		require.NoError(t, repo.Create(t.Context(), NewRecord(uuid.NewString(), base)))

		records, err := repo.ListByWorkflow(t.Context(), workflowID, 0)
		require.NoError(t, err)
		require.Len(t, records, persistence.DefaultExecutionListLimit)
		assert.Equal(t, ids[11], records[0].ID)
		assert.Equal(t, ids[2], records[9].ID)

		records, err = repo.ListByWorkflow(t.Context(), workflowID, 3)
		require.NoError(t, err)
		require.Len(t, records, 3)

		records, err = repo.ListByWorkflow(t.Context(), uuid.NewString(), 5)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("idempotency key lookup", func(t *testing.T) {
		store := factory(t)
		repo := store.ExecutionRepository()
		workflowID := uuid.NewString()

		record := NewRecord(workflowID, time.Now())
		record.IdempotencyKey = "lead-42"
		require.NoError(t, repo.Create(t.Context(), record))
		require.NoError(t, repo.Create(t.Context(), NewRecord(workflowID, time.Now())))

		found, err := repo.GetByIdempotencyKey(t.Context(), workflowID, "lead-42")
		require.NoError(t, err)
		assert.Equal(t, record.ID, found.ID)

		_, err = repo.GetByIdempotencyKey(t.Context(), uuid.NewString(), "lead-42")
		assert.True(t, persistence.IsExecutionNotFound(err))

		_, err = repo.GetByIdempotencyKey(t.Context(), workflowID, "other")
		assert.True(t, persistence.IsExecutionNotFound(err))
	})

	t.Run("duplicate idempotency key is rejected", func(t *testing.T) {
		store := factory(t)
		repo := store.ExecutionRepository()
		workflowID := uuid.NewString()

		first := NewRecord(workflowID, time.Now())
		first.IdempotencyKey = "lead-42"
		require.NoError(t, repo.Create(t.Context(), first))

		second := NewRecord(workflowID, time.Now())
		second.IdempotencyKey = "lead-42"
		err := repo.Create(t.Context(), second)
		require.Error(t, err)
		assert.True(t, persistence.IsDuplicateIdempotencyKey(err))

		other := NewRecord(uuid.NewString(), time.Now())
		other.IdempotencyKey = "lead-42"
		require.NoError(t, repo.Create(t.Context(), other))

		require.NoError(t, repo.Create(t.Context(), NewRecord(workflowID, time.Now())))
		require.NoError(t, repo.Create(t.Context(), NewRecord(workflowID, time.Now())))

		found, err := repo.GetByIdempotencyKey(t.Context(), workflowID, "lead-42")
		require.NoError(t, err)
		assert.Equal(t, first.ID, found.ID)

		records, err := repo.ListByWorkflow(t.Context(), workflowID, 50)
		require.NoError(t, err)
		assert.Len(t, records, 3)
	})

	t.Run("concurrent creates", func(t *testing.T) {
		store := factory(t)
		repo := store.ExecutionRepository()
		workflowID := uuid.NewString()

		var wg sync.WaitGroup

		errs := make(chan error, 20)

		for i := range 20 {
			wg.Add(1)

			go func() {
				defer wg.Done()

				record := NewRecord(workflowID, time.Now().Add(time.Duration(i)*time.Second))
				if err := repo.Create(t.Context(), record); err != nil {
					errs <- fmt.Errorf("create %d: %w", i, err)
				}
			}()
		}

		wg.Wait()
		close(errs)

		for err := range errs {
			require.NoError(t, err)
		}

		records, err := repo.ListByWorkflow(t.Context(), workflowID, 50)
		require.NoError(t, err)
		assert.Len(t, records, 20)
	})

	t.Run("health check", func(t *testing.T) {
		store := factory(t)
		require.NoError(t, store.HealthCheck(t.Context()))
	})
}
