package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/google/uuid"
)

const workflowColumns = `
	id
  , owner_id
  , name
  , description
  , definition
  , execution_count
  , last_executed_at
  , created_at
  , updated_at
`

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

// GetAll returns all workflows from the database.
func (r *WorkflowRepository) GetAll(ctx context.Context) ([]*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + `
		FROM workflows
		WHERE deleted_at IS NULL
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + `
		FROM workflows
		WHERE id = $1 AND deleted_at IS NULL
	`

	workflow, err := scanWorkflow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	return workflow, nil
}

// Save inserts or replaces a workflow. Run statistics are owned by UpdateStats
// and are not overwritten by an update.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workflow ID: %w", err)
		}

		workflow.ID = id.String()
	}

	definitionJSON, err := json.Marshal(workflow.Definition)
	if err != nil {
		return fmt.Errorf("failed to marshal definition: %w", err)
	}

	query := `
		INSERT INTO workflows (id, owner_id, name, description, definition,
			execution_count, last_executed_at, created_at, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULL)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			definition = EXCLUDED.definition,
			updated_at = EXCLUDED.updated_at,
			deleted_at = NULL
	`

	_, err = r.db.ExecContext(ctx, query,
		workflow.ID,
		workflow.OwnerID,
		workflow.Name,
		workflow.Description,
		definitionJSON,
		workflow.ExecutionCount,
		workflow.LastExecutedAt,
		workflow.CreatedAt,
		workflow.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}

	return nil
}

// Delete soft deletes a workflow by setting deleted_at timestamp.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE workflows SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL",
		id, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	return nil
}

func (r *WorkflowRepository) UpdateStats(ctx context.Context, id string, lastExecutedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE workflows SET last_executed_at = $2, execution_count = execution_count + 1
		 WHERE id = $1 AND deleted_at IS NULL`,
		id, lastExecutedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to update workflow stats: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update workflow stats: %w", err)
	}

	if affected == 0 {
		return persistence.NewWorkflowError("UpdateStats", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

func scanWorkflow(row scanner) (*models.Workflow, error) {
	var (
		workflow       models.Workflow
		definitionJSON []byte
		lastExecutedAt sql.NullTime
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.OwnerID,
		&workflow.Name,
		&workflow.Description,
		&definitionJSON,
		&workflow.ExecutionCount,
		&lastExecutedAt,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(definitionJSON) > 0 {
		err = json.Unmarshal(definitionJSON, &workflow.Definition)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal definition: %w", err)
		}
	}

	if lastExecutedAt.Valid {
		executedAt := lastExecutedAt.Time.UTC()
		workflow.LastExecutedAt = &executedAt
	}

	return &workflow, nil
}
