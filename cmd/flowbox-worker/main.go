// Package main provides the stage execution worker binary.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/dukex/flowbox/pkg/clients/mail"
	"github.com/dukex/flowbox/pkg/cmd"
	"github.com/dukex/flowbox/pkg/log"
	"github.com/dukex/flowbox/pkg/otelhelper"
	"github.com/dukex/flowbox/pkg/worker"
)

func main() {
	command := &cli.Command{
		Name:                  "flowbox-worker",
		EnableShellCompletion: true,
		Usage:                 "Execute workflow run stages from the broker",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:     "ledger-url",
				Usage:    "Base URL of the ledger service transfers are submitted to",
				Required: true,
				Sources:  cli.EnvVars("LEDGER_URL"),
			},
			&cli.StringFlag{
				Name:    "ledger-api-key",
				Usage:   "API key for the ledger service",
				Sources: cli.EnvVars("LEDGER_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the transfer effect guard",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "smtp-host",
				Usage:   "SMTP host for the email handler",
				Sources: cli.EnvVars("SMTP_HOST"),
			},
			&cli.IntFlag{
				Name:    "smtp-port",
				Usage:   "SMTP port for the email handler",
				Value:   587,
				Sources: cli.EnvVars("SMTP_PORT"),
			},
			&cli.StringFlag{
				Name:    "smtp-username",
				Usage:   "SMTP username",
				Sources: cli.EnvVars("SMTP_USERNAME"),
			},
			&cli.StringFlag{
				Name:    "smtp-password",
				Usage:   "SMTP password",
				Sources: cli.EnvVars("SMTP_PASSWORD"),
			},
			&cli.StringFlag{
				Name:    "smtp-from",
				Usage:   "From address for the email handler",
				Sources: cli.EnvVars("SMTP_FROM_EMAIL"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OpenTelemetry tracing",
				Sources: cli.EnvVars("TRACING_ENABLED"),
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

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("flowbox-worker").With("worker_id", workerID)
			logger.InfoContext(ctx, "Initializing Flowbox worker")

			if command.Bool("tracing") {
				_, err := otelhelper.NewTracer(ctx, "flowbox-worker")
				if err != nil {
					logger.ErrorContext(ctx, "Failed to initialize tracer", "error", err)
				}
			}

			registry := cmd.NewRegistry(logger, cmd.RegistryConfig{
				LedgerURL:    command.String("ledger-url"),
				LedgerAPIKey: command.String("ledger-api-key"),
				RedisURL:     command.String("redis-url"),
				SMTP: mail.SMTPConfig{
					Host:     command.String("smtp-host"),
					Port:     command.Int("smtp-port"),
					Username: command.String("smtp-username"),
					Password: command.String("smtp-password"),
					From:     command.String("smtp-from"),
				},
			})

			eventBus := cmd.NewEventBus(command.String("event-bus"), "flowbox-worker", logger)
			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			w := worker.NewWorker(workerID, persistence, eventBus, logger, registry)

			err := w.Start(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start worker", "error", err)

				return err
			}

			logger.InfoContext(ctx, "Worker started successfully")

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			<-sigChan
			logger.InfoContext(ctx, "Shutting down worker...")

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		os.Exit(1)
	}
}
