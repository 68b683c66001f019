// Package transform provides the data transformation executor.
package transform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/template"
)

var ErrMissingExpression = errors.New("missing required field 'expression'")

// Executor renders a Go template expression over the variables. Object results
// become the node output directly, anything else is returned under "result".
type Executor struct {
	logger *slog.Logger
}

func NewExecutor(logger *slog.Logger) *Executor {
	return &Executor{logger: logger}
}

func (e *Executor) Execute(ctx context.Context, node *models.Node, execCtx *models.ExecutionContext) (models.NodeOutput, error) {
	expression := node.Data.GetString("expression")
	if expression == "" {
		execCtx.Error(node.ID, ErrMissingExpression.Error(), nil)

		return nil, ErrMissingExpression
	}

	result, err := template.RenderWithContext(expression, execCtx)
	if err != nil {
		err = fmt.Errorf("transformation failed: %w", err)
		execCtx.Error(node.ID, err.Error(), nil)

		return nil, err
	}

	e.logger.DebugContext(ctx, "Transformation rendered", "node_id", node.ID)

	if object, ok := result.(map[string]any); ok {
		return object, nil
	}

	return models.NodeOutput{"result": result}, nil
}
