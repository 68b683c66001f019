package httprequest

import (
	"context"
	"log/slog"

	"github.com/dukex/flowrun/pkg/protocol"
)

// ExecutorFactory creates HTTP request Executor instances.
type ExecutorFactory struct{}

func (f *ExecutorFactory) Create(ctx context.Context, logger *slog.Logger) (protocol.NodeExecutor, error) {
	return NewExecutor(logger), nil
}

func (f *ExecutorFactory) ID() string {
	return "http-request"
}

func (f *ExecutorFactory) Name() string {
	return "HTTP Request"
}

func (f *ExecutorFactory) Description() string {
	return "Makes HTTP requests with templated URL, headers and body, retrying server errors"
}

func (f *ExecutorFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Request URL. Supports templating.",
				"examples":    []string{"https://api.example.com/users/{{ .vars.userId }}"},
			},
			"method": map[string]any{
				"type":    "string",
				"enum":    []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
				"default": "GET",
			},
			"headers": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "string"},
			},
			"body": map[string]any{
				"description": "Request body, either a template string or a JSON value",
			},
			"timeout": map[string]any{
				"type":    "number",
				"minimum": 1,
				"maximum": 300,
				"default": 30,
			},
			"retries": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"attempts": map[string]any{"type": "number", "minimum": 1, "maximum": 10, "default": 1},
					"delay":    map[string]any{"type": "number", "minimum": 0, "maximum": 30000, "default": 0},
				},
			},
		},
		"required": []string{"url"},
	}
}

func NewExecutorFactory() protocol.ExecutorFactory {
	return &ExecutorFactory{}
}
