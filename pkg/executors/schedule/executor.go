// Package schedule provides the schedule trigger executor.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/robfig/cron/v3"
)

// DataVariable is the variable the cron dispatcher seeds when it fires a workflow.
const DataVariable = "scheduleData"

// TriggerExecutor validates the node's cron expression and exposes the firing details.
type TriggerExecutor struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewTriggerExecutor(logger *slog.Logger) *TriggerExecutor {
	return &TriggerExecutor{logger: logger, now: time.Now}
}

// ParseCron parses a standard five field cron expression (descriptors such as @hourly are accepted).
func ParseCron(expression string) (cron.Schedule, error) {
	schedule, err := cron.ParseStandard(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression '%s': %w", expression, err)
	}

	return schedule, nil
}

func (e *TriggerExecutor) Execute(ctx context.Context, node *models.Node, execCtx *models.ExecutionContext) (models.NodeOutput, error) {
	expression := node.Data.GetString("cron")

	output := models.NodeOutput{
		"triggeredAt": e.now().UTC().Format(time.RFC3339),
	}

	if expression != "" {
		schedule, err := ParseCron(expression)
		if err != nil {
			execCtx.Warning(node.ID, err.Error(), nil)
		} else {
			output["cron"] = expression
			output["nextRunAt"] = schedule.Next(e.now()).UTC().Format(time.RFC3339)
		}
	}

	if data, ok := execCtx.Variables[DataVariable].(map[string]any); ok {
		maps.Copy(output, data)
	}

	e.logger.DebugContext(ctx, "Schedule trigger fired", "node_id", node.ID, "cron", expression)
	execCtx.Info(node.ID, "Schedule trigger fired", nil)

	return output, nil
}
