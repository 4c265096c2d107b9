// Package main provides the Flowpilot API server.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/flowpilot-io/flowpilot/pkg/actions"
	"github.com/flowpilot-io/flowpilot/pkg/eventbus"
	"github.com/flowpilot-io/flowpilot/pkg/persistence"
	"github.com/flowpilot-io/flowpilot/pkg/runner"
	"github.com/flowpilot-io/flowpilot/pkg/services"
	"github.com/flowpilot-io/flowpilot/pkg/web"
	"github.com/flowpilot-io/flowpilot/pkg/webhook"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *actions.Registry
	eventBus    eventbus.EventBus
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *actions.Registry,
	eventBus eventbus.EventBus,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		registry:    registry,
		eventBus:    eventBus,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	wfRunner := runner.New(a.persistence, a.registry, a.eventBus, nil, a.logger)
	simulator := runner.NewSimulator(a.registry, a.logger)
	dispatcher := webhook.NewDispatcher(a.persistence, nil, a.logger)
	retries := webhook.NewRetryScheduler(a.persistence, dispatcher, a.logger)

	workflowService := services.NewWorkflow(a.persistence, wfRunner, simulator)
	webhookService := services.NewWebhook(a.persistence, dispatcher, retries)

	handlers := web.NewAPIHandlers(workflowService, webhookService, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Flowpilot API")
	})

	handlers.Register(app)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
