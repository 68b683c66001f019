package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/flowrun/pkg/cmd"
	"github.com/dukex/flowrun/pkg/log"
	"github.com/dukex/flowrun/pkg/workflow"
)

var errWorkflowIDRequired = errors.New("workflow id is required")

// ExecuteCommand runs one workflow in the foreground and prints its execution record.
func ExecuteCommand() *cli.Command {
	return &cli.Command{
		Name:      "execute",
		Aliases:   []string{"x"},
		Usage:     "Run a workflow once and print the execution record as JSON",
		ArgsUsage: "<workflow-id>",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:  "input",
				Usage: "JSON object merged into the initial variables",
			},
			&cli.StringFlag{
				Name:  "user-id",
				Usage: "User the execution is recorded for (defaults to the workflow owner)",
			},
			&cli.StringFlag{
				Name:  "idempotency-key",
				Usage: "Return the existing execution for this key instead of running again",
			},
		}, cmd.CommonFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("flowrun-execute")

			workflowID := command.Args().First()
			if workflowID == "" {
				return errWorkflowIDRequired
			}

			input, err := parseInput(command.String("input"))
			if err != nil {
				return err
			}

			ghl := cmd.NewGoHighLevelClient(command.String("gohighlevel-base-url"), command.String("gohighlevel-api-key"))

			registry, err := cmd.NewRegistry(ctx, logger, command.String("plugins-path"), ghl)
			if err != nil {
				return err
			}

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			userID := command.String("user-id")
			if userID == "" {
				wf, err := persistence.WorkflowRepository().GetByID(ctx, workflowID)
				if err != nil {
					return err
				}

				userID = wf.OwnerID
			}

			runner := workflow.NewRunner(persistence, registry, logger, workflow.WithConfig(cmd.RunnerConfig(command)))

			executionID, runErr := runner.ExecuteWorkflow(ctx, workflow.RunRequest{
				WorkflowID:     workflowID,
				UserID:         userID,
				InputData:      input,
				IdempotencyKey: command.String("idempotency-key"),
			})
			if executionID == "" {
				return runErr
			}

			record, err := runner.GetExecutionStatus(ctx, executionID)
			if err != nil {
				return errors.Join(runErr, err)
			}

			if err := printJSON(command.Root().Writer, record); err != nil {
				return err
			}

			return runErr
		},
	}
}

func parseInput(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}

	var input map[string]any
	if err := json.Unmarshal([]byte(raw), &input); err != nil {
		return nil, fmt.Errorf("invalid --input JSON: %w", err)
	}

	return input, nil
}

func printJSON(w io.Writer, v any) error {
	if w == nil {
		w = os.Stdout
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return encoder.Encode(v)
}
