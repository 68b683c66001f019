// Package persistence provides the storage contract the execution engine reads and writes through.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/flowrun/pkg/models"
)

// DefaultExecutionListLimit is used when a non-positive limit is requested.
const DefaultExecutionListLimit = 10

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflow definitions.
type WorkflowRepository interface {
	GetAll(ctx context.Context) ([]*models.Workflow, error)
	// GetByID returns ErrWorkflowNotFound when the workflow does not exist.
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error
	// UpdateStats records a completed run. The execution count is incremented
	// atomically by the store.
	UpdateStats(ctx context.Context, id string, lastExecutedAt time.Time) error
}

// ExecutionRepository stores execution records.
type ExecutionRepository interface {
	// Create assigns record.ID when it is empty.
	Create(ctx context.Context, record *models.ExecutionRecord) error
	// Update applies a partial update. Unset fields keep their stored value.
	Update(ctx context.Context, id string, update models.ExecutionUpdate) error
	// GetByID returns ErrExecutionNotFound when the record does not exist.
	GetByID(ctx context.Context, id string) (*models.ExecutionRecord, error)
	// ListByWorkflow returns the newest records first.
	ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.ExecutionRecord, error)
	// GetByIdempotencyKey returns ErrExecutionNotFound when no record carries the key.
	GetByIdempotencyKey(ctx context.Context, workflowID, key string) (*models.ExecutionRecord, error)
}

// NormalizeLimit maps non-positive limits to DefaultExecutionListLimit.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultExecutionListLimit
	}

	return limit
}
