// Package log provides the logging executor.
package log

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/template"
)

var ErrMissingMessage = errors.New("missing required field 'message'")

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Executor writes a templated message to the process logger and the execution log.
type Executor struct {
	logger *slog.Logger
}

func NewExecutor(logger *slog.Logger) *Executor {
	return &Executor{logger: logger}
}

func (e *Executor) Execute(ctx context.Context, node *models.Node, execCtx *models.ExecutionContext) (models.NodeOutput, error) {
	raw := node.Data.GetString("message")
	if raw == "" {
		return nil, ErrMissingMessage
	}

	message, err := template.RenderStringWithContext(raw, execCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render log message template: %w", err)
	}

	level := node.Data.GetString("level")
	if _, ok := levels[level]; !ok {
		level = "info"
	}

	e.logger.Log(ctx, levels[level], message,
		"node_id", node.ID,
		"execution_id", execCtx.ExecutionID,
		"workflow_id", execCtx.WorkflowID,
	)

	switch level {
	case "warn":
		execCtx.Warning(node.ID, message, nil)
	case "error":
		execCtx.Error(node.ID, message, nil)
	default:
		execCtx.Info(node.ID, message, nil)
	}

	return models.NodeOutput{
		"message": message,
		"level":   level,
	}, nil
}
