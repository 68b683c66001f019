// Package protocol defines the interfaces and contracts for pluggable node executors.
package protocol

import (
	"context"
	"log/slog"

	"github.com/dukex/flowrun/pkg/models"
)

// NodeExecutor performs the work of one node.
//
// Business-level failures should be reported through warning or error logs on
// execCtx together with a best-effort output. A returned error is unrecoverable
// and aborts the whole run.
type NodeExecutor interface {
	Execute(ctx context.Context, node *models.Node, execCtx *models.ExecutionContext) (models.NodeOutput, error)
}

// NodeExecutorFunc adapts a function to NodeExecutor.
type NodeExecutorFunc func(ctx context.Context, node *models.Node, execCtx *models.ExecutionContext) (models.NodeOutput, error)

// Execute calls f.
func (f NodeExecutorFunc) Execute(ctx context.Context, node *models.Node, execCtx *models.ExecutionContext) (models.NodeOutput, error) {
	return f(ctx, node, execCtx)
}

// ExecutorFactory creates an executor and describes it.
type ExecutorFactory interface {
	// ID returns the registration key: "<integration>" or "<integration>-<moduleType>".
	ID() string

	// Name returns the human-readable name for this executor
	Name() string

	// Description returns a description of what this executor does
	Description() string

	// Schema returns the JSON schema for the node configuration
	Schema() map[string]any

	// Create builds the executor
	Create(ctx context.Context, logger *slog.Logger) (NodeExecutor, error)
}
