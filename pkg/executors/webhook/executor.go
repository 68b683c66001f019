// Package webhook provides the webhook trigger executor.
package webhook

import (
	"context"
	"log/slog"
	"maps"

	"github.com/dukex/flowrun/pkg/models"
)

// DataVariable is the variable the webhook ingestion layer seeds with the request payload.
const DataVariable = "webhookData"

// TriggerExecutor echoes the webhook payload so later nodes see its fields as variables.
type TriggerExecutor struct {
	logger *slog.Logger
}

func NewTriggerExecutor(logger *slog.Logger) *TriggerExecutor {
	return &TriggerExecutor{logger: logger}
}

func (e *TriggerExecutor) Execute(ctx context.Context, node *models.Node, execCtx *models.ExecutionContext) (models.NodeOutput, error) {
	data, ok := execCtx.Variables[DataVariable].(map[string]any)
	if !ok {
		execCtx.Warning(node.ID, "Webhook trigger has no webhook data", nil)

		return models.NodeOutput{}, nil
	}

	output := make(models.NodeOutput, len(data))
	maps.Copy(output, data)

	e.logger.DebugContext(ctx, "Webhook trigger fired", "node_id", node.ID, "fields", len(output))
	execCtx.Info(node.ID, "Webhook trigger received data", nil)

	return output, nil
}
