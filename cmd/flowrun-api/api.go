// Package main provides the flowrun API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/registry"
	"github.com/dukex/flowrun/pkg/services"
	"github.com/dukex/flowrun/pkg/web"
	"github.com/dukex/flowrun/pkg/workflow"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	runner      *workflow.Runner
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	runner *workflow.Runner,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		registry:    registry,
		runner:      runner,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	workflowService := services.NewWorkflow(a.persistence, a.registry)
	executionService := services.NewExecution(a.runner, workflowService)

	handlers := web.NewAPIHandlers(workflowService, executionService, a.validate, a.registry)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("flowrun API")
	})

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Put("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/execute", handlers.ExecuteWorkflow)
	w.Get("/:id/executions", handlers.GetWorkflowExecutions)

	app.Get("/executions/:id", handlers.GetExecution)
	app.Get("/executors", handlers.GetExecutors)
	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	a.logger.Info("Starting flowrun API", "port", port)

	return app.Listen(":" + strconv.Itoa(port))
}
