// Package redis implements persistence.Persistence on Redis. Workflows and
// execution records are stored as hashes; a sorted set per workflow orders
// its executions by start time and a hash per workflow maps idempotency keys
// to execution ids.
package redis

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dukex/flowrun/pkg/persistence"
)

const keyPrefix = "flowrun:"

// workflowKey returns the key for a workflow entity: flowrun:workflow:{id}
func workflowKey(id string) string { return keyPrefix + "workflow:" + id }

// workflowIDsKey is the Set tracking all workflow IDs for enumeration.
const workflowIDsKey = keyPrefix + "workflow_ids"

// executionKey returns the key for an execution record: flowrun:execution:{id}
func executionKey(id string) string { return keyPrefix + "execution:" + id }

// workflowExecutionsKey returns the Sorted Set of execution IDs of a workflow, scored by start time.
func workflowExecutionsKey(workflowID string) string {
	return keyPrefix + "workflow_executions:" + workflowID
}

// idempotencyKey returns the Hash mapping idempotency keys to execution IDs for a workflow.
func idempotencyKey(workflowID string) string {
	return keyPrefix + "idempotency:" + workflowID
}

// Persistence implements persistence.Persistence backed by Redis.
type Persistence struct {
	client        goredis.UniversalClient
	logger        *slog.Logger
	ownsClient    bool
	workflowRepo  *WorkflowRepository
	executionRepo *ExecutionRepository
}

// NewPersistence connects to the Redis server at redisURL (redis://host:port/db).
func NewPersistence(ctx context.Context, logger *slog.Logger, redisURL string) (*Persistence, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("flowrun/redis: parse url: %w", err)
	}

	client := goredis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("flowrun/redis: ping: %w", err)
	}

	p := New(client, logger)
	p.ownsClient = true

	return p, nil
}

// New wraps an existing client. The caller owns the client lifecycle.
func New(client goredis.UniversalClient, logger *slog.Logger) *Persistence {
	return &Persistence{
		client:        client,
		logger:        logger,
		workflowRepo:  &WorkflowRepository{client: client},
		executionRepo: &ExecutionRepository{client: client},
	}
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p.executionRepo
}

// HealthCheck verifies the Redis connection is alive.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("flowrun/redis: ping: %w", err)
	}

	return nil
}

// Close closes the client when it was opened by NewPersistence.
func (p *Persistence) Close(_ context.Context) error {
	if !p.ownsClient {
		return nil
	}

	if err := p.client.Close(); err != nil {
		return fmt.Errorf("flowrun/redis: close: %w", err)
	}

	return nil
}
