package cmd

import (
	"context"
	"log/slog"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/flowrun/pkg/otelhelper"
	"github.com/dukex/flowrun/pkg/workflow"
)

// CommonFlags are the flags shared by every flowrun binary.
func CommonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Database connection URL for persistence (file://, postgres://, redis://)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   EventBusGoChannel,
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka brokers for the kafka event bus",
			Value:   "localhost:9092",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "plugins-path",
			Usage:   "Path to the directory containing executor plugins",
			Value:   "./plugins",
			Sources: cli.EnvVars("PLUGINS_PATH"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json)",
			Value:   "text",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
		&cli.DurationFlag{
			Name:    "run-timeout",
			Usage:   "Maximum duration of a whole run (0 disables)",
			Sources: cli.EnvVars("RUN_TIMEOUT"),
		},
		&cli.DurationFlag{
			Name:    "node-timeout",
			Usage:   "Maximum duration of a single executor call (0 disables)",
			Sources: cli.EnvVars("NODE_TIMEOUT"),
		},
		&cli.BoolFlag{
			Name:    "strict-graph",
			Usage:   "Fail runs whose graph contains a cycle instead of running the reachable nodes",
			Sources: cli.EnvVars("STRICT_GRAPH"),
		},
		&cli.BoolFlag{
			Name:    "namespaced-outputs",
			Usage:   "Also keep every node output under the nodes variable keyed by node id",
			Sources: cli.EnvVars("NAMESPACED_OUTPUTS"),
		},
		&cli.IntFlag{
			Name:    "worker-concurrency",
			Usage:   "Number of queued runs executed at once",
			Value:   workflow.DefaultConcurrency,
			Sources: cli.EnvVars("WORKER_CONCURRENCY"),
		},
		&cli.StringFlag{
			Name:    "gohighlevel-api-key",
			Usage:   "GoHighLevel API key; the mock client is used when empty",
			Sources: cli.EnvVars("GOHIGHLEVEL_API_KEY"),
		},
		&cli.StringFlag{
			Name:    "gohighlevel-base-url",
			Usage:   "GoHighLevel API base URL",
			Sources: cli.EnvVars("GOHIGHLEVEL_BASE_URL"),
		},
		&cli.BoolFlag{
			Name:    "otel-enabled",
			Usage:   "Export traces over OTLP/HTTP",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
	}
}

// RunnerConfig builds the runner configuration from the common flags.
func RunnerConfig(command *cli.Command) workflow.RunnerConfig {
	config := workflow.DefaultRunnerConfig()
	config.RunTimeout = command.Duration("run-timeout")
	config.NodeTimeout = command.Duration("node-timeout")
	config.StrictGraph = command.Bool("strict-graph")
	config.NamespacedOutputs = command.Bool("namespaced-outputs")

	return config
}

// SetupTracing installs the OTLP tracer provider when enabled. The returned
// function flushes it and is safe to call when tracing is off.
func SetupTracing(ctx context.Context, logger *slog.Logger, enabled bool, serviceName string) (func(), error) {
	if !enabled {
		return func() {}, nil
	}

	tracerProvider, err := otelhelper.SetupTracing(ctx, serviceName)
	if err != nil {
		return nil, err
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			logger.Error("Failed to shutdown tracer provider", "error", err)
		}
	}, nil
}
