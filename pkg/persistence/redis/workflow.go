package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/google/uuid"
)

// WorkflowRepository stores workflows as hashes.
type WorkflowRepository struct {
	client goredis.UniversalClient
}

func (r *WorkflowRepository) GetAll(ctx context.Context) ([]*models.Workflow, error) {
	ids, err := r.client.SMembers(ctx, workflowIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("flowrun/redis: list workflows smembers: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(ids))

	for _, id := range ids {
		vals, err := r.client.HGetAll(ctx, workflowKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("flowrun/redis: get workflow %s: %w", id, err)
		}

		if len(vals) == 0 {
			continue
		}

		workflow, err := mapToWorkflow(vals)
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

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	vals, err := r.client.HGetAll(ctx, workflowKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("flowrun/redis: get workflow: %w", err)
	}

	if len(vals) == 0 {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	return mapToWorkflow(vals)
}

// Save writes the definition fields. Run statistics are only initialised here
// and afterwards belong to UpdateStats.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if workflow.ID == "" {
		workflow.ID = uuid.NewString()
	}

	m, err := workflowToMap(workflow)
	if err != nil {
		return err
	}

	key := workflowKey(workflow.ID)

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, m)
	pipe.HSetNX(ctx, key, "execution_count", strconv.FormatInt(workflow.ExecutionCount, 10))
	pipe.SAdd(ctx, workflowIDsKey, workflow.ID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("flowrun/redis: save workflow: %w", err)
	}

	return nil
}

func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, workflowKey(id))
	pipe.SRem(ctx, workflowIDsKey, id)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("flowrun/redis: delete workflow: %w", err)
	}

	return nil
}

func (r *WorkflowRepository) UpdateStats(ctx context.Context, id string, lastExecutedAt time.Time) error {
	key := workflowKey(id)

	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("flowrun/redis: update stats exists: %w", err)
	}

	if exists == 0 {
		return persistence.NewWorkflowError("UpdateStats", id, persistence.ErrWorkflowNotFound)
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, "last_executed_at", lastExecutedAt.UTC().Format(time.RFC3339Nano))
	pipe.HIncrBy(ctx, key, "execution_count", 1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("flowrun/redis: update stats: %w", err)
	}

	return nil
}

func workflowToMap(w *models.Workflow) (map[string]any, error) {
	definition, err := json.Marshal(w.Definition)
	if err != nil {
		return nil, fmt.Errorf("flowrun/redis: marshal definition: %w", err)
	}

	return map[string]any{
		"id":          w.ID,
		"owner_id":    w.OwnerID,
		"name":        w.Name,
		"description": w.Description,
		"definition":  string(definition),
		"created_at":  w.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":  w.UpdatedAt.Format(time.RFC3339Nano),
	}, nil
}

func mapToWorkflow(m map[string]string) (*models.Workflow, error) {
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"])
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"])
	executionCount, _ := strconv.ParseInt(m["execution_count"], 10, 64)

	w := &models.Workflow{
		ID:             m["id"],
		OwnerID:        m["owner_id"],
		Name:           m["name"],
		Description:    m["description"],
		ExecutionCount: executionCount,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
	}

	if raw := m["definition"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &w.Definition); err != nil {
			return nil, fmt.Errorf("flowrun/redis: unmarshal definition of %s: %w", w.ID, err)
		}
	}

	if raw := m["last_executed_at"]; raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			w.LastExecutedAt = &t
		}
	}

	return w, nil
}
