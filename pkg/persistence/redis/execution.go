package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/google/uuid"
)

// ExecutionRepository stores execution records as hashes.
type ExecutionRepository struct {
	client goredis.UniversalClient
}

func (r *ExecutionRepository) Create(ctx context.Context, record *models.ExecutionRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	if record.Logs == nil {
		record.Logs = []models.ExecutionLog{}
	}

	if record.IdempotencyKey != "" {
		claimed, err := r.client.HSetNX(ctx, idempotencyKey(record.WorkflowID), record.IdempotencyKey, record.ID).Result()
		if err != nil {
			return fmt.Errorf("flowrun/redis: claim idempotency key: %w", err)
		}

		if !claimed {
			return persistence.NewExecutionError("Create", record.ID, persistence.ErrDuplicateIdempotencyKey)
		}
	}

	m, err := recordToMap(record)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, executionKey(record.ID), m)
	pipe.ZAdd(ctx, workflowExecutionsKey(record.WorkflowID), score(record.ID, record.StartedAt))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("flowrun/redis: create execution: %w", err)
	}

	return nil
}

// Update writes only the fields set on update, which matches
// models.ExecutionRecord.Apply without a read-modify-write cycle.
func (r *ExecutionRepository) Update(ctx context.Context, id string, update models.ExecutionUpdate) error {
	key := executionKey(id)

	workflowID, err := r.client.HGet(ctx, key, "workflow_id").Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return persistence.NewExecutionError("Update", id, persistence.ErrExecutionNotFound)
		}

		return fmt.Errorf("flowrun/redis: update execution: %w", err)
	}

	m := map[string]any{}

	if update.Status != "" {
		m["status"] = string(update.Status)
	}

	if update.StartedAt != nil {
		m["started_at"] = update.StartedAt.UTC().Format(time.RFC3339Nano)
	}

	if update.CompletedAt != nil {
		m["completed_at"] = update.CompletedAt.UTC().Format(time.RFC3339Nano)
	}

	if update.Error != nil {
		m["error"] = *update.Error
		m["has_error"] = "1"
	}

	for field, value := range map[string]any{"logs": update.Logs, "output_data": update.OutputData} {
		if isNil(value) {
			continue
		}

		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("flowrun/redis: marshal %s: %w", field, err)
		}

		m[field] = string(raw)
	}

	if len(m) == 0 {
		return nil
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, m)

	if update.StartedAt != nil {
		pipe.ZAdd(ctx, workflowExecutionsKey(workflowID), score(id, *update.StartedAt))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("flowrun/redis: update execution: %w", err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.ExecutionRecord, error) {
	vals, err := r.client.HGetAll(ctx, executionKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("flowrun/redis: get execution: %w", err)
	}

	if len(vals) == 0 {
		return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
	}

	return mapToRecord(vals)
}

func (r *ExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.ExecutionRecord, error) {
	limit = persistence.NormalizeLimit(limit)

	ids, err := r.client.ZRevRange(ctx, workflowExecutionsKey(workflowID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("flowrun/redis: list executions zrevrange: %w", err)
	}

	records := make([]*models.ExecutionRecord, 0, len(ids))

	for _, id := range ids {
		record, err := r.GetByID(ctx, id)
		if err != nil {
			if persistence.IsExecutionNotFound(err) {
				continue
			}

			return nil, err
		}

		records = append(records, record)
	}

	return records, nil
}

func (r *ExecutionRepository) GetByIdempotencyKey(ctx context.Context, workflowID, key string) (*models.ExecutionRecord, error) {
	id, err := r.client.HGet(ctx, idempotencyKey(workflowID), key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, persistence.NewExecutionError("GetByIdempotencyKey", key, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("flowrun/redis: get idempotency key: %w", err)
	}

	return r.GetByID(ctx, id)
}

// score orders executions by start time in milliseconds; equal scores fall
// back to the member id ordering of the sorted set.
func score(id string, startedAt time.Time) goredis.Z {
	return goredis.Z{Score: float64(startedAt.UnixMilli()), Member: id}
}

func isNil(v any) bool {
	switch value := v.(type) {
	case []models.ExecutionLog:
		return value == nil
	case map[string]any:
		return value == nil
	default:
		return v == nil
	}
}

func recordToMap(rec *models.ExecutionRecord) (map[string]any, error) {
	input, err := json.Marshal(rec.InputData)
	if err != nil {
		return nil, fmt.Errorf("flowrun/redis: marshal input: %w", err)
	}

	logs, err := json.Marshal(rec.Logs)
	if err != nil {
		return nil, fmt.Errorf("flowrun/redis: marshal logs: %w", err)
	}

	m := map[string]any{
		"id":              rec.ID,
		"workflow_id":     rec.WorkflowID,
		"user_id":         rec.UserID,
		"status":          string(rec.Status),
		"input_data":      string(input),
		"logs":            string(logs),
		"idempotency_key": rec.IdempotencyKey,
		"started_at":      rec.StartedAt.UTC().Format(time.RFC3339Nano),
	}

	if rec.OutputData != nil {
		output, err := json.Marshal(rec.OutputData)
		if err != nil {
			return nil, fmt.Errorf("flowrun/redis: marshal output: %w", err)
		}

		m["output_data"] = string(output)
	}

	if rec.Error != nil {
		m["error"] = *rec.Error
		m["has_error"] = "1"
	}

	if rec.CompletedAt != nil {
		m["completed_at"] = rec.CompletedAt.UTC().Format(time.RFC3339Nano)
	}

	return m, nil
}

func mapToRecord(m map[string]string) (*models.ExecutionRecord, error) {
	startedAt, _ := time.Parse(time.RFC3339Nano, m["started_at"])

	rec := &models.ExecutionRecord{
		ID:             m["id"],
		WorkflowID:     m["workflow_id"],
		UserID:         m["user_id"],
		Status:         models.ExecutionStatus(m["status"]),
		IdempotencyKey: m["idempotency_key"],
		StartedAt:      startedAt,
	}

	if m["has_error"] == "1" {
		message := m["error"]
		rec.Error = &message
	}

	if raw := m["completed_at"]; raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			rec.CompletedAt = &t
		}
	}

	for field, dest := range map[string]any{
		"input_data":  &rec.InputData,
		"output_data": &rec.OutputData,
		"logs":        &rec.Logs,
	} {
		raw := m[field]
		if raw == "" {
			continue
		}

		if err := json.Unmarshal([]byte(raw), dest); err != nil {
			return nil, fmt.Errorf("flowrun/redis: unmarshal %s of %s: %w", field, rec.ID, err)
		}
	}

	return rec, nil
}
