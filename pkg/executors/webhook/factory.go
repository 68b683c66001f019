package webhook

import (
	"context"
	"log/slog"

	"github.com/dukex/flowrun/pkg/protocol"
)

// TriggerExecutorFactory creates TriggerExecutor instances.
type TriggerExecutorFactory struct{}

func (f *TriggerExecutorFactory) Create(ctx context.Context, logger *slog.Logger) (protocol.NodeExecutor, error) {
	return NewTriggerExecutor(logger), nil
}

func (f *TriggerExecutorFactory) ID() string {
	return "webhook-trigger"
}

func (f *TriggerExecutorFactory) Name() string {
	return "Webhook Trigger"
}

func (f *TriggerExecutorFactory) Description() string {
	return "Starts a workflow from an incoming webhook and exposes its payload fields as variables"
}

func (f *TriggerExecutorFactory) Schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

func NewTriggerExecutorFactory() protocol.ExecutorFactory {
	return &TriggerExecutorFactory{}
}
