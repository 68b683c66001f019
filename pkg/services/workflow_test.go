package services

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/flowrun/pkg/executors/gohighlevel"
	"github.com/dukex/flowrun/pkg/graph"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/persistence/file"
	"github.com/dukex/flowrun/pkg/registry"
)

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()

	reg := registry.NewRegistry(slog.Default())
	require.NoError(t, reg.RegisterDefaultExecutors(t.Context(), gohighlevel.NewMockClient()))

	return reg
}

func newWorkflowService(t *testing.T) (*Workflow, *file.Persistence) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())

	return NewWorkflow(p, newRegistry(t)), p
}

func leadWorkflow(name string) *models.Workflow {
	return &models.Workflow{
		OwnerID:     "user-1",
		Name:        name,
		Description: "Follow up new leads",
		Definition: models.Definition{
			Nodes: []*models.Node{
				{ID: "A", Type: "trigger", Data: models.NodeData{Integration: "webhook-trigger"}},
				{ID: "B", Type: "action", Data: models.NodeData{
					Integration: "gohighlevel-action",
					ModuleType:  "send-sms",
					Config:      map[string]any{"message": "Hi {{ .vars.firstName }}"},
				}},
			},
			Edges: []*models.Edge{{ID: "e1", Source: "A", Target: "B"}},
		},
	}
}

func TestNewWorkflow(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	service := NewWorkflow(p, nil)

	assert.NotNil(t, service)
	assert.Equal(t, p, service.persistence)
}

func TestWorkflow_Create(t *testing.T) {
	service, p := newWorkflowService(t)

	wf := leadWorkflow("Lead follow-up")
	wf.ExecutionCount = 42

	created, err := service.Create(t.Context(), wf)
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.False(t, created.UpdatedAt.IsZero())
	assert.Zero(t, created.ExecutionCount)

	stored, err := p.WorkflowRepository().GetByID(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lead follow-up", stored.Name)
	require.Len(t, stored.Definition.Nodes, 2)
	assert.Equal(t, "send-sms", stored.Definition.Nodes[1].Data.ModuleType)
}

func TestWorkflow_CreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(wf *models.Workflow) *models.Workflow
		target error
	}{
		{
			name:   "nil workflow",
			mutate: func(*models.Workflow) *models.Workflow { return nil },
			target: ErrWorkflowNil,
		},
		{
			name: "missing name",
			mutate: func(wf *models.Workflow) *models.Workflow {
				wf.Name = "  "

				return wf
			},
			target: ErrWorkflowNameRequired,
		},
		{
			name: "missing owner",
			mutate: func(wf *models.Workflow) *models.Workflow {
				wf.OwnerID = ""

				return wf
			},
			target: ErrEmptyOwnerID,
		},
		{
			name: "no nodes",
			mutate: func(wf *models.Workflow) *models.Workflow {
				wf.Definition = models.Definition{}

				return wf
			},
			target: ErrNodesRequired,
		},
		{
			name: "edge to unknown node",
			mutate: func(wf *models.Workflow) *models.Workflow {
				wf.Definition.Edges = append(wf.Definition.Edges, &models.Edge{ID: "e2", Source: "B", Target: "Z"})

				return wf
			},
			target: graph.ErrUnknownNode,
		},
		{
			name: "duplicate node id",
			mutate: func(wf *models.Workflow) *models.Workflow {
				wf.Definition.Nodes = append(wf.Definition.Nodes, &models.Node{ID: "A"})

				return wf
			},
			target: ErrInvalidGraph,
		},
		{
			name: "node config fails executor schema",
			mutate: func(wf *models.Workflow) *models.Workflow {
				wf.Definition.Nodes = append(wf.Definition.Nodes, &models.Node{
					ID:   "C",
					Data: models.NodeData{Integration: "data-transform", Config: map[string]any{}},
				})

				return wf
			},
			target: ErrInvalidNodeConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, _ := newWorkflowService(t)

			_, err := service.Create(t.Context(), tt.mutate(leadWorkflow("Lead follow-up")))
			require.Error(t, err)
			require.ErrorIs(t, err, tt.target)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestWorkflow_CreateAcceptsCycles(t *testing.T) {
	service, _ := newWorkflowService(t)

	wf := leadWorkflow("Cyclic")
	wf.Definition.Edges = append(wf.Definition.Edges, &models.Edge{ID: "e2", Source: "B", Target: "A"})

	_, err := service.Create(t.Context(), wf)
	require.NoError(t, err)
}

func TestWorkflow_FetchByID(t *testing.T) {
	service, _ := newWorkflowService(t)

	created, err := service.Create(t.Context(), leadWorkflow("Fetch me"))
	require.NoError(t, err)

	fetched, err := service.FetchByID(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, fetched.ID)
	assert.Equal(t, "Fetch me", fetched.Name)

	_, err = service.FetchByID(t.Context(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestWorkflow_UpdateKeepsStats(t *testing.T) {
	service, p := newWorkflowService(t)

	created, err := service.Create(t.Context(), leadWorkflow("Original"))
	require.NoError(t, err)

	executedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for range 3 {
		require.NoError(t, p.WorkflowRepository().UpdateStats(t.Context(), created.ID, executedAt))
	}

	replacement := leadWorkflow("Renamed")
	replacement.OwnerID = ""

	updated, err := service.Update(t.Context(), created.ID, replacement)
	require.NoError(t, err)

	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, "user-1", updated.OwnerID)
	assert.Equal(t, int64(3), updated.ExecutionCount)
	require.NotNil(t, updated.LastExecutedAt)
	assert.True(t, executedAt.Equal(*updated.LastExecutedAt))
	assert.True(t, created.CreatedAt.Equal(updated.CreatedAt))
}

func TestWorkflow_UpdateErrors(t *testing.T) {
	service, _ := newWorkflowService(t)

	_, err := service.Update(t.Context(), "missing", leadWorkflow("Whatever"))
	require.ErrorIs(t, err, ErrWorkflowNotFound)

	created, err := service.Create(t.Context(), leadWorkflow("Original"))
	require.NoError(t, err)

	broken := leadWorkflow("Broken")
	broken.Definition.Edges = []*models.Edge{{Source: "A", Target: "nowhere"}}

	_, err = service.Update(t.Context(), created.ID, broken)
	require.ErrorIs(t, err, ErrInvalidGraph)
}

func TestWorkflow_Delete(t *testing.T) {
	service, _ := newWorkflowService(t)

	created, err := service.Create(t.Context(), leadWorkflow("Delete me"))
	require.NoError(t, err)

	require.NoError(t, service.Delete(t.Context(), created.ID))

	_, err = service.FetchByID(t.Context(), created.ID)
	assert.True(t, persistence.IsWorkflowNotFound(err))

	err = service.Delete(t.Context(), created.ID)
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestWorkflow_ListWorkflows(t *testing.T) {
	service, _ := newWorkflowService(t)

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	service.now = func() time.Time {
		clock = clock.Add(time.Minute)

		return clock
	}

	for _, name := range []string{"Charlie", "Alpha", "Bravo"} {
		_, err := service.Create(t.Context(), leadWorkflow(name))
		require.NoError(t, err)
	}

	other := leadWorkflow("Delta")
	other.OwnerID = "user-2"
	_, err := service.Create(t.Context(), other)
	require.NoError(t, err)

	result, err := service.ListWorkflows(t.Context(), ListWorkflowsRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), result.TotalCount)
	assert.False(t, result.HasNextPage)
	assert.Equal(t, "Delta", result.Workflows[0].Name)

	result, err = service.ListWorkflows(t.Context(), ListWorkflowsRequest{OwnerID: "user-1", SortBy: "name", SortOrder: "asc", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.TotalCount)
	assert.True(t, result.HasNextPage)
	require.Len(t, result.Workflows, 2)
	assert.Equal(t, "Alpha", result.Workflows[0].Name)
	assert.Equal(t, "Bravo", result.Workflows[1].Name)

	result, err = service.ListWorkflows(t.Context(), ListWorkflowsRequest{OwnerID: "user-1", SortBy: "name", SortOrder: "asc", Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, result.Workflows, 1)
	assert.Equal(t, "Charlie", result.Workflows[0].Name)
	assert.False(t, result.HasNextPage)

	result, err = service.ListWorkflows(t.Context(), ListWorkflowsRequest{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, result.Workflows)
}

func TestWorkflow_ListWorkflowsValidation(t *testing.T) {
	service, _ := newWorkflowService(t)

	_, err := service.ListWorkflows(t.Context(), ListWorkflowsRequest{SortBy: "owner"})
	require.ErrorIs(t, err, ErrInvalidSortField)
	assert.True(t, IsValidationError(err))

	_, err = service.ListWorkflows(t.Context(), ListWorkflowsRequest{SortOrder: "up"})
	require.ErrorIs(t, err, ErrInvalidSortOrder)
}

func TestWorkflow_HealthCheck(t *testing.T) {
	service, _ := newWorkflowService(t)

	message, ok := service.HealthCheck(t.Context())
	assert.True(t, ok)
	assert.Equal(t, "Persistence layer is healthy", message)

	message, ok = NewWorkflow(nil, nil).HealthCheck(t.Context())
	assert.False(t, ok)
	assert.Equal(t, "Persistence layer not initialized", message)
}
