package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
)

// WorkflowRepository handles workflow-related file operations.
type WorkflowRepository struct {
	root string
	mu   sync.RWMutex
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(root string) *WorkflowRepository {
	return &WorkflowRepository{root: root}
}

func (wr *WorkflowRepository) dir() string {
	return filepath.Join(wr.root, "workflows")
}

// GetAll returns every stored workflow ordered by creation time.
func (wr *WorkflowRepository) GetAll(ctx context.Context) ([]*models.Workflow, error) {
	wr.mu.RLock()
	defer wr.mu.RUnlock()

	ids, err := listIDs(wr.dir())
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow files: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(ids))

	for _, id := range ids {
		workflow, err := wr.load(id)
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	sort.SliceStable(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.Before(workflows[j].CreatedAt)
	})

	return workflows, nil
}

// GetByID retrieves a workflow by its ID from the file system.
func (wr *WorkflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	if err := validateID(id); err != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	wr.mu.RLock()
	defer wr.mu.RUnlock()

	return wr.load(id)
}

func (wr *WorkflowRepository) load(id string) (*models.Workflow, error) {
	var workflow models.Workflow

	err := readJSON(filepath.Join(wr.dir(), id+".json"), &workflow)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to fetch workflow %s: %w", id, err)
	}

	return &workflow, nil
}

// Save saves a workflow to the file system.
func (wr *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	if err := validateID(workflow.ID); err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	wr.mu.Lock()
	defer wr.mu.Unlock()

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	return writeJSON(wr.dir(), workflow.ID, workflow)
}

// Delete removes a workflow by its ID.
func (wr *WorkflowRepository) Delete(_ context.Context, id string) error {
	if err := validateID(id); err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	wr.mu.Lock()
	defer wr.mu.Unlock()

	err := os.Remove(filepath.Join(wr.dir(), id+".json"))
	if err != nil && os.IsNotExist(err) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to delete workflow %s: %w", id, err)
	}

	return nil
}

// UpdateStats bumps the run statistics without touching the definition. The
// read-modify-write happens under the write lock.
func (wr *WorkflowRepository) UpdateStats(_ context.Context, id string, lastExecutedAt time.Time) error {
	if err := validateID(id); err != nil {
		return persistence.NewWorkflowError("UpdateStats", id, err)
	}

	wr.mu.Lock()
	defer wr.mu.Unlock()

	workflow, err := wr.load(id)
	if err != nil {
		return err
	}

	executedAt := lastExecutedAt.UTC()
	workflow.LastExecutedAt = &executedAt
	workflow.ExecutionCount++

	return writeJSON(wr.dir(), id, workflow)
}
