package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dukex/flowrun/pkg/graph"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
)

var (
	// ErrWorkflowNotFound is returned when a workflow is not found.
	ErrWorkflowNotFound = persistence.ErrWorkflowNotFound
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// NodeConfigValidator checks a node configuration against the schema of its executor.
type NodeConfigValidator interface {
	ValidateNodeConfig(node *models.Node) error
}

type Workflow struct {
	persistence persistence.Persistence
	nodeConfig  NodeConfigValidator
	now         func() time.Time
}

// NewWorkflow creates a new workflow service. nodeConfig may be nil, in which
// case node configurations are not checked on write.
func NewWorkflow(persistence persistence.Persistence, nodeConfig NodeConfigValidator) *Workflow {
	return &Workflow{
		persistence: persistence,
		nodeConfig:  nodeConfig,
		now:         time.Now,
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListWorkflowsRequest contains options for listing workflows.
type ListWorkflowsRequest struct {
	// Pagination
	Limit  int
	Offset int

	// Filtering
	OwnerID string

	// Sorting
	SortBy    string
	SortOrder string
}

// ListWorkflowsResponse contains the result of listing workflows.
type ListWorkflowsResponse struct {
	Workflows   []*models.Workflow `json:"workflows"`
	TotalCount  int64              `json:"total_count"`
	HasNextPage bool               `json:"has_next_page"`
}

// ListWorkflows retrieves workflows with filtering, sorting, and pagination.
// The gateway only lists everything, so filtering and paging happen here.
func (w *Workflow) ListWorkflows(ctx context.Context, req ListWorkflowsRequest) (*ListWorkflowsResponse, error) {
	if err := w.validateListWorkflowsRequest(&req); err != nil {
		return nil, err
	}

	all, err := w.persistence.WorkflowRepository().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	filtered := make([]*models.Workflow, 0, len(all))

	for _, wf := range all {
		if req.OwnerID == "" || wf.OwnerID == req.OwnerID {
			filtered = append(filtered, wf)
		}
	}

	slices.SortStableFunc(filtered, func(a, b *models.Workflow) int {
		var cmp int

		switch req.SortBy {
		case "name":
			cmp = strings.Compare(a.Name, b.Name)
		case "updated_at":
			cmp = a.UpdatedAt.Compare(b.UpdatedAt)
		default:
			cmp = a.CreatedAt.Compare(b.CreatedAt)
		}

		if req.SortOrder == "desc" {
			return -cmp
		}

		return cmp
	})

	total := len(filtered)
	start := min(req.Offset, total)
	end := min(start+req.Limit, total)

	return &ListWorkflowsResponse{
		Workflows:   filtered[start:end],
		TotalCount:  int64(total),
		HasNextPage: end < total,
	}, nil
}

// validateListWorkflowsRequest validates and sets defaults for the request.
func (w *Workflow) validateListWorkflowsRequest(req *ListWorkflowsRequest) error {
	if req.Limit <= 0 {
		req.Limit = defaultListLimit
	}

	if req.Limit > maxListLimit {
		req.Limit = maxListLimit
	}

	if req.Offset < 0 {
		req.Offset = 0
	}

	if req.SortBy == "" {
		req.SortBy = "created_at"
	}

	if req.SortOrder == "" {
		req.SortOrder = "desc"
	}

	allowedSorts := []string{"created_at", "updated_at", "name"}

	if !slices.Contains(allowedSorts, req.SortBy) {
		return NewValidationError(
			"validateListWorkflowsRequest",
			"INVALID_SORT_FIELD",
			fmt.Sprintf("invalid sort field '%s', allowed: %s", req.SortBy, strings.Join(allowedSorts, ", ")),
			ErrInvalidSortField,
		)
	}

	if req.SortOrder != "asc" && req.SortOrder != "desc" {
		return NewValidationError(
			"validateListWorkflowsRequest",
			"INVALID_SORT_ORDER",
			fmt.Sprintf("invalid sort order '%s', allowed: asc, desc", req.SortOrder),
			ErrInvalidSortOrder,
		)
	}

	req.OwnerID = strings.TrimSpace(req.OwnerID)

	return nil
}

// FetchByID retrieves a workflow by its ID.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if workflow == nil {
		return nil, ErrWorkflowNotFound
	}

	return workflow, nil
}

// Create validates the definition and stores it as a new workflow.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if err := w.validate(workflow); err != nil {
		return nil, err
	}

	now := w.now().UTC()
	workflow.ID = uuid.New().String()
	workflow.CreatedAt = now
	workflow.UpdatedAt = now
	workflow.ExecutionCount = 0
	workflow.LastExecutedAt = nil

	err := w.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	return workflow, nil
}

// Update replaces the definition of an existing workflow. Execution
// statistics and the creation time are kept from the stored workflow.
func (w *Workflow) Update(
	ctx context.Context,
	workflowID string,
	workflow *models.Workflow,
) (*models.Workflow, error) {
	existing, err := w.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow != nil && workflow.OwnerID == "" {
		workflow.OwnerID = existing.OwnerID
	}

	if err := w.validate(workflow); err != nil {
		return nil, err
	}

	workflow.ID = workflowID
	workflow.CreatedAt = existing.CreatedAt
	workflow.UpdatedAt = w.now().UTC()
	workflow.ExecutionCount = existing.ExecutionCount
	workflow.LastExecutedAt = existing.LastExecutedAt

	err = w.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	return workflow, nil
}

// Delete removes a workflow by its ID.
func (w *Workflow) Delete(ctx context.Context, workflowID string) error {
	if _, err := w.FetchByID(ctx, workflowID); err != nil {
		return err
	}

	err := w.persistence.WorkflowRepository().Delete(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	return nil
}

// validate rejects definitions that could never load at run time. Cycles are
// accepted here; the runner decides how to treat them.
func (w *Workflow) validate(workflow *models.Workflow) error {
	if workflow == nil {
		return ErrWorkflowNil
	}

	if strings.TrimSpace(workflow.Name) == "" {
		return ErrWorkflowNameRequired
	}

	if strings.TrimSpace(workflow.OwnerID) == "" {
		return ErrEmptyOwnerID
	}

	if len(workflow.Definition.Nodes) == 0 {
		return ErrNodesRequired
	}

	if err := graph.Validate(workflow.Definition); err != nil {
		return NewValidationError("validateWorkflow", "INVALID_GRAPH", err.Error(), errors.Join(ErrInvalidGraph, err))
	}

	if w.nodeConfig == nil {
		return nil
	}

	for _, node := range workflow.Definition.Nodes {
		if err := w.nodeConfig.ValidateNodeConfig(node); err != nil {
			return NewValidationError("validateWorkflow", "INVALID_NODE_CONFIG", err.Error(), errors.Join(ErrInvalidNodeConfig, err))
		}
	}

	return nil
}
