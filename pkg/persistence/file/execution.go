package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/google/uuid"
)

// ExecutionRepository stores execution records as one JSON file each.
type ExecutionRepository struct {
	root string
	mu   sync.RWMutex
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(root string) *ExecutionRepository {
	return &ExecutionRepository{root: root}
}

func (er *ExecutionRepository) dir() string {
	return filepath.Join(er.root, "executions")
}

func (er *ExecutionRepository) Create(_ context.Context, record *models.ExecutionRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	if err := validateID(record.ID); err != nil {
		return persistence.NewExecutionError("Create", record.ID, err)
	}

	er.mu.Lock()
	defer er.mu.Unlock()

	if record.IdempotencyKey != "" {
		records, err := er.all()
		if err != nil {
			return err
		}

		for _, existing := range records {
			if existing.WorkflowID == record.WorkflowID && existing.IdempotencyKey == record.IdempotencyKey {
				return persistence.NewExecutionError("Create", record.ID, persistence.ErrDuplicateIdempotencyKey)
			}
		}
	}

	if record.Logs == nil {
		record.Logs = []models.ExecutionLog{}
	}

	return writeJSON(er.dir(), record.ID, record)
}

func (er *ExecutionRepository) Update(_ context.Context, id string, update models.ExecutionUpdate) error {
	if err := validateID(id); err != nil {
		return persistence.NewExecutionError("Update", id, err)
	}

	er.mu.Lock()
	defer er.mu.Unlock()

	record, err := er.load(id)
	if err != nil {
		return err
	}

	record.Apply(update)

	return writeJSON(er.dir(), id, record)
}

func (er *ExecutionRepository) GetByID(_ context.Context, id string) (*models.ExecutionRecord, error) {
	if err := validateID(id); err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	er.mu.RLock()
	defer er.mu.RUnlock()

	return er.load(id)
}

func (er *ExecutionRepository) ListByWorkflow(_ context.Context, workflowID string, limit int) ([]*models.ExecutionRecord, error) {
	er.mu.RLock()
	defer er.mu.RUnlock()

	records, err := er.all()
	if err != nil {
		return nil, err
	}

	matching := make([]*models.ExecutionRecord, 0)

	for _, record := range records {
		if record.WorkflowID == workflowID {
			matching = append(matching, record)
		}
	}

	sort.SliceStable(matching, func(i, j int) bool {
		if matching[i].StartedAt.Equal(matching[j].StartedAt) {
			return matching[i].ID > matching[j].ID
		}

		return matching[i].StartedAt.After(matching[j].StartedAt)
	})

	limit = persistence.NormalizeLimit(limit)
	if len(matching) > limit {
		matching = matching[:limit]
	}

	return matching, nil
}

func (er *ExecutionRepository) GetByIdempotencyKey(_ context.Context, workflowID, key string) (*models.ExecutionRecord, error) {
	er.mu.RLock()
	defer er.mu.RUnlock()

	records, err := er.all()
	if err != nil {
		return nil, err
	}

	for _, record := range records {
		if record.WorkflowID == workflowID && record.IdempotencyKey != "" && record.IdempotencyKey == key {
			return record, nil
		}
	}

	return nil, persistence.NewExecutionError("GetByIdempotencyKey", key, persistence.ErrExecutionNotFound)
}

func (er *ExecutionRepository) all() ([]*models.ExecutionRecord, error) {
	ids, err := listIDs(er.dir())
	if err != nil {
		return nil, fmt.Errorf("failed to list execution files: %w", err)
	}

	records := make([]*models.ExecutionRecord, 0, len(ids))

	for _, id := range ids {
		record, err := er.load(id)
		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	return records, nil
}

func (er *ExecutionRepository) load(id string) (*models.ExecutionRecord, error) {
	var record models.ExecutionRecord

	err := readJSON(filepath.Join(er.dir(), id+".json"), &record)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to fetch execution %s: %w", id, err)
	}

	return &record, nil
}
