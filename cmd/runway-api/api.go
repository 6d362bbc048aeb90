// Package main provides the Runway API server implementation.
package main

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/runwayci/runway/pkg/background"
	"github.com/runwayci/runway/pkg/eventbus"
	"github.com/runwayci/runway/pkg/execution"
	"github.com/runwayci/runway/pkg/executor/remote"
	"github.com/runwayci/runway/pkg/interrupts"
	"github.com/runwayci/runway/pkg/locker"
	"github.com/runwayci/runway/pkg/persistence"
	"github.com/runwayci/runway/pkg/web"
)

const poolShutdownTimeout = 10 * time.Second

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	locker      locker.Locker
	validate    *validator.Validate
	pool        *background.Pool
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	locker locker.Locker,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		eventBus:    eventBus,
		locker:      locker,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		pool:        background.NewPool(logger, 4),
	}
}

func (a *API) App() *fiber.App {
	executor := remote.NewExecutor(a.eventBus, a.logger)

	service := execution.NewService(execution.Config{
		Persistence: a.persistence,
		Executor:    executor,
		Interrupts:  interrupts.NewManager(a.persistence, executor, a.logger),
		Publisher:   a.eventBus,
		Locker:      a.locker,
		Pool:        a.pool,
		Logger:      a.logger,
	})

	handlers := web.NewAPIHandlers(service, a.persistence, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Runway API")
	})

	applications := app.Group("/applications/:appId")

	e := applications.Group("/executions")
	e.Post("/", handlers.TriggerExecution)
	e.Get("/", handlers.ListExecutions)
	e.Get("/:id", handlers.GetExecution)
	e.Get("/:id/breakdown", handlers.GetExecutionBreakdown)
	e.Get("/:id/approval", handlers.GetWaitingApproval)
	e.Post("/:id/interrupts", handlers.RegisterInterrupt)
	e.Put("/:id/notes", handlers.UpdateNotes)

	applications.Get("/workflows/:workflowId/running", handlers.ExecutionsRunning)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), poolShutdownTimeout)
		defer cancel()

		err := a.pool.Shutdown(shutdownCtx)
		if err != nil {
			a.logger.ErrorContext(ctx, "Failed to drain background pool", "error", err)
		}
	}()

	return app.Listen(":" + strconv.Itoa(port))
}
