package schedule

import (
	"context"
	"log/slog"

	"github.com/dukex/flowrun/pkg/protocol"
)

// Integration is the node integration tag of schedule triggers.
const Integration = "schedule-trigger"

// TriggerExecutorFactory creates TriggerExecutor instances.
type TriggerExecutorFactory struct{}

func (f *TriggerExecutorFactory) Create(ctx context.Context, logger *slog.Logger) (protocol.NodeExecutor, error) {
	return NewTriggerExecutor(logger), nil
}

func (f *TriggerExecutorFactory) ID() string {
	return Integration
}

func (f *TriggerExecutorFactory) Name() string {
	return "Schedule Trigger"
}

func (f *TriggerExecutorFactory) Description() string {
	return "Starts a workflow on a cron schedule"
}

func (f *TriggerExecutorFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"cron": map[string]any{
				"type":        "string",
				"description": "Standard cron expression (minute hour day month weekday)",
				"examples":    []string{"0 9 * * 1-5", "*/15 * * * *", "@hourly"},
			},
		},
		"required": []string{"cron"},
	}
}

func NewTriggerExecutorFactory() protocol.ExecutorFactory {
	return &TriggerExecutorFactory{}
}
