package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/flowrun/pkg/cmd"
	"github.com/dukex/flowrun/pkg/log"
	"github.com/dukex/flowrun/pkg/workflow"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "flowrun-api",
		Usage:                 "Create, manage and execute workflows",
		EnableShellCompletion: true,
		Flags: append([]cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.BoolFlag{
				Name:    "dispatch",
				Usage:   "Run queued executions inside the API process (always on for the gochannel event bus)",
				Sources: cli.EnvVars("API_DISPATCH"),
			},
		}, cmd.CommonFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("flowrun-api")

			logger.InfoContext(ctx, "Initializing flowrun API")

			shutdownTracing, err := cmd.SetupTracing(ctx, logger, command.Bool("otel-enabled"), "flowrun-api")
			if err != nil {
				return err
			}
			defer shutdownTracing()

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

			eventBusType := command.String("event-bus")

			eventBus, err := cmd.NewEventBus(eventBusType, command.String("kafka-brokers"), "flowrun-api", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			runner := workflow.NewRunner(
				persistence,
				registry,
				logger,
				workflow.WithEventBus(eventBus),
				workflow.WithConfig(cmd.RunnerConfig(command)),
			)

			// In-memory channels never leave the process, so queued runs must be consumed here.
			if command.Bool("dispatch") || eventBusType == cmd.EventBusGoChannel || eventBusType == "" {
				dispatcher := workflow.NewDispatcher(runner, eventBus, logger, command.Int("worker-concurrency"))
				if err := dispatcher.Start(ctx); err != nil {
					return err
				}
			}

			api := NewAPI(logger, persistence, registry, runner)

			if err := api.Start(command.Int("port")); err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)

				return err
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
