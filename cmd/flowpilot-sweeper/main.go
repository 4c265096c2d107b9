package main

import (
	"context"
	"os"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/flowpilot-io/flowpilot/pkg/cmd"
	"github.com/flowpilot-io/flowpilot/pkg/crm"
	"github.com/flowpilot-io/flowpilot/pkg/log"
)

func main() {
	logger := log.WithModule("flowpilot-sweeper")

	command := &cli.Command{
		Name:                  "flowpilot-sweeper",
		EnableShellCompletion: true,
		Usage:                 "Resume suspended runs, retry failed deliveries and fire time-based workflows",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus type (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:     "crm-url",
				Usage:    "Base URL of the CRM record backend",
				Required: true,
				Sources:  cli.EnvVars("CRM_URL"),
			},
			&cli.StringFlag{
				Name:    "crm-token",
				Usage:   "Bearer token for the CRM record backend",
				Sources: cli.EnvVars("CRM_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for round-robin assignment state",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.DurationFlag{
				Name:    "resume-interval",
				Usage:   "How often to sweep for suspended runs due to resume",
				Value:   time.Minute,
				Sources: cli.EnvVars("RESUME_INTERVAL"),
			},
			&cli.DurationFlag{
				Name:    "retry-interval",
				Usage:   "How often to sweep for failed deliveries due for retry",
				Value:   5 * time.Minute,
				Sources: cli.EnvVars("RETRY_INTERVAL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Flowpilot Sweeper")

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			backend := crm.NewClient(command.String("crm-url"), crm.WithToken(command.String("crm-token")))
			registry := cmd.NewRegistry(logger, backend, command.String("redis-url"))

			sweeper := NewSweeperManager(persistence, eventBus, registry, logger,
				command.Duration("resume-interval"), command.Duration("retry-interval"))

			return sweeper.Start(ctx)
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
