package log

import (
	"context"
	"log/slog"

	"github.com/dukex/flowrun/pkg/protocol"
)

// ExecutorFactory creates log Executor instances.
type ExecutorFactory struct{}

func (f *ExecutorFactory) Create(ctx context.Context, logger *slog.Logger) (protocol.NodeExecutor, error) {
	return NewExecutor(logger), nil
}

func (f *ExecutorFactory) ID() string {
	return "log"
}

func (f *ExecutorFactory) Name() string {
	return "Log"
}

func (f *ExecutorFactory) Description() string {
	return "Logs messages at different levels (debug, info, warn, error) with template support for dynamic content"
}

func (f *ExecutorFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Message to log. Supports templating with execution context data.",
				"examples": []string{
					"Processing user: {{ .vars.user_name }}",
					"Execution {{ .execution.id }} reached the log step",
				},
			},
			"level": map[string]any{
				"type":    "string",
				"enum":    []string{"debug", "info", "warn", "error"},
				"default": "info",
			},
		},
		"required": []string{"message"},
	}
}

func NewExecutorFactory() protocol.ExecutorFactory {
	return &ExecutorFactory{}
}
