package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const uniqueViolation = pq.ErrorCode("23505")

const executionColumns = `
	id
  , workflow_id
  , user_id
  , status
  , input_data
  , output_data
  , logs
  , error
  , idempotency_key
  , started_at
  , completed_at
`

// ExecutionRepository handles execution record database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

func (r *ExecutionRepository) Create(ctx context.Context, record *models.ExecutionRecord) error {
	if record.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate execution ID: %w", err)
		}

		record.ID = id.String()
	}

	if record.Logs == nil {
		record.Logs = []models.ExecutionLog{}
	}

	err := r.write(ctx, r.db, record, `
		INSERT INTO executions (`+executionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && record.IdempotencyKey != "" {
		return persistence.NewExecutionError("Create", record.ID, persistence.ErrDuplicateIdempotencyKey)
	}

	return err
}

func (r *ExecutionRepository) Update(ctx context.Context, id string, update models.ExecutionUpdate) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	record, err := scanExecution(tx.QueryRowContext(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.NewExecutionError("Update", id, persistence.ErrExecutionNotFound)
		}

		return fmt.Errorf("failed to load execution: %w", err)
	}

	record.Apply(update)

	err = r.write(ctx, tx, record, `
		UPDATE executions SET
			workflow_id = $2,
			user_id = $3,
			status = $4,
			input_data = $5,
			output_data = $6,
			logs = $7,
			error = $8,
			idempotency_key = $9,
			started_at = $10,
			completed_at = $11
		WHERE id = $1
	`)
	if err != nil {
		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit execution update: %w", err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.ExecutionRecord, error) {
	record, err := scanExecution(r.db.QueryRowContext(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return record, nil
}

func (r *ExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.ExecutionRecord, error) {
	query := `SELECT ` + executionColumns + `
		FROM executions
		WHERE workflow_id = $1
		ORDER BY started_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID, persistence.NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	records := make([]*models.ExecutionRecord, 0)

	for rows.Next() {
		record, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		records = append(records, record)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return records, nil
}

func (r *ExecutionRepository) GetByIdempotencyKey(ctx context.Context, workflowID, key string) (*models.ExecutionRecord, error) {
	record, err := scanExecution(r.db.QueryRowContext(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE workflow_id = $1 AND idempotency_key = $2`,
		workflowID, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetByIdempotencyKey", key, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return record, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *ExecutionRepository) write(ctx context.Context, db execer, record *models.ExecutionRecord, query string) error {
	inputJSON, err := json.Marshal(record.InputData)
	if err != nil {
		return fmt.Errorf("failed to marshal input data: %w", err)
	}

	var outputJSON any
	if record.OutputData != nil {
		raw, err := json.Marshal(record.OutputData)
		if err != nil {
			return fmt.Errorf("failed to marshal output data: %w", err)
		}

		outputJSON = raw
	}

	logsJSON, err := json.Marshal(record.Logs)
	if err != nil {
		return fmt.Errorf("failed to marshal logs: %w", err)
	}

	var idempotencyKey sql.NullString
	if record.IdempotencyKey != "" {
		idempotencyKey = sql.NullString{String: record.IdempotencyKey, Valid: true}
	}

	_, err = db.ExecContext(ctx, query,
		record.ID,
		record.WorkflowID,
		record.UserID,
		string(record.Status),
		inputJSON,
		outputJSON,
		logsJSON,
		record.Error,
		idempotencyKey,
		record.StartedAt.UTC(),
		record.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to write execution %s: %w", record.ID, err)
	}

	return nil
}

func scanExecution(row scanner) (*models.ExecutionRecord, error) {
	var (
		record         models.ExecutionRecord
		status         string
		inputJSON      []byte
		outputJSON     []byte
		logsJSON       []byte
		errorMessage   sql.NullString
		idempotencyKey sql.NullString
		completedAt    sql.NullTime
	)

	err := row.Scan(
		&record.ID,
		&record.WorkflowID,
		&record.UserID,
		&status,
		&inputJSON,
		&outputJSON,
		&logsJSON,
		&errorMessage,
		&idempotencyKey,
		&record.StartedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Status = models.ExecutionStatus(status)
	record.StartedAt = record.StartedAt.UTC()
	record.IdempotencyKey = idempotencyKey.String

	if errorMessage.Valid {
		message := errorMessage.String
		record.Error = &message
	}

	if completedAt.Valid {
		at := completedAt.Time.UTC()
		record.CompletedAt = &at
	}

	for _, field := range []struct {
		raw  []byte
		dest any
	}{
		{inputJSON, &record.InputData},
		{outputJSON, &record.OutputData},
		{logsJSON, &record.Logs},
	} {
		if len(field.raw) == 0 {
			continue
		}

		err = json.Unmarshal(field.raw, field.dest)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution %s: %w", record.ID, err)
		}
	}

	return &record, nil
}
