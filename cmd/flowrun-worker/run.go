package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/dukex/flowrun/pkg/cmd"
	"github.com/dukex/flowrun/pkg/log"
	"github.com/dukex/flowrun/pkg/schedule"
	"github.com/dukex/flowrun/pkg/workflow"
)

const defaultSyncInterval = time.Minute

func RunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Consume queued executions and fire scheduled workflows",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.DurationFlag{
				Name:    "schedule-sync-interval",
				Usage:   "How often schedule triggers are reloaded from persistence",
				Value:   defaultSyncInterval,
				Sources: cli.EnvVars("SCHEDULE_SYNC_INTERVAL"),
			},
			&cli.BoolFlag{
				Name:    "disable-scheduler",
				Usage:   "Do not fire schedule triggers from this worker",
				Sources: cli.EnvVars("DISABLE_SCHEDULER"),
			},
		}, cmd.CommonFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("flowrun-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing flowrun worker")

			shutdownTracing, err := cmd.SetupTracing(ctx, logger, command.Bool("otel-enabled"), "flowrun-worker")
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
				err := persistence.Close(context.WithoutCancel(ctx))
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "flowrun-worker", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(context.WithoutCancel(ctx)); err != nil {
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

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			dispatcher := workflow.NewDispatcher(runner, eventBus, logger, command.Int("worker-concurrency"))
			if err := dispatcher.Start(ctx); err != nil {
				return err
			}

			var scheduler *schedule.Scheduler

			if !command.Bool("disable-scheduler") {
				scheduler = schedule.NewScheduler(persistence.WorkflowRepository(), runner, logger)
				if err := scheduler.Sync(ctx); err != nil {
					return err
				}

				scheduler.Start(ctx)

				go resync(ctx, logger, scheduler, command.Duration("schedule-sync-interval"))
			}

			logger.InfoContext(ctx, "Worker started successfully")

			<-ctx.Done()
			logger.Info("Shutting down worker...")

			if scheduler != nil {
				if err := scheduler.Stop(context.Background()); err != nil {
					logger.Error("Failed to stop scheduler", "error", err)
				}
			}

			dispatcher.Wait()

			return nil
		},
	}
}

// resync reloads schedule triggers so created, edited and deleted workflows
// are picked up without a restart.
func resync(ctx context.Context, logger *slog.Logger, scheduler *schedule.Scheduler, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := scheduler.Sync(ctx); err != nil {
				logger.ErrorContext(ctx, "Failed to sync schedules", "error", err)
			}
		}
	}
}
