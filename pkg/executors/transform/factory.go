package transform

import (
	"context"
	"log/slog"

	"github.com/dukex/flowrun/pkg/protocol"
)

// ExecutorFactory creates transform Executor instances.
type ExecutorFactory struct{}

func (f *ExecutorFactory) Create(ctx context.Context, logger *slog.Logger) (protocol.NodeExecutor, error) {
	return NewExecutor(logger), nil
}

func (f *ExecutorFactory) ID() string {
	return "data-transform"
}

func (f *ExecutorFactory) Name() string {
	return "Transform"
}

func (f *ExecutorFactory) Description() string {
	return "Reshapes workflow variables with a Go template expression"
}

func (f *ExecutorFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expression": map[string]any{
				"type":        "string",
				"description": "Go template rendered over the variables. JSON object output is merged as individual variables.",
				"examples": []string{
					`{"fullName": "{{ .vars.firstName }} {{ .vars.lastName }}"}`,
					"{{ len .vars.items }}",
				},
			},
		},
		"required": []string{"expression"},
	}
}

func NewExecutorFactory() protocol.ExecutorFactory {
	return &ExecutorFactory{}
}
