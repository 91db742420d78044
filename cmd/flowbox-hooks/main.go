// Package main provides the workflow management and webhook ingestion server.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-playground/validator/v10"
	cli "github.com/urfave/cli/v3"

	"github.com/dukex/flowbox/pkg/cmd"
	"github.com/dukex/flowbox/pkg/log"
	"github.com/dukex/flowbox/pkg/web"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "flowbox-hooks",
		EnableShellCompletion: true,
		Usage:                 "Manage workflows and catch webhook triggers",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the HTTP server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
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

			logger := log.WithModule("flowbox-hooks")
			logger.InfoContext(ctx, "Initializing Flowbox hooks server")

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			validate := validator.New(validator.WithRequiredStructEnabled())
			handlers := web.NewAPIHandlers(logger, persistence, validate)
			app := web.NewApp(handlers)

			go func() {
				sigChan := make(chan os.Signal, 1)
				signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

				<-sigChan
				logger.InfoContext(ctx, "Shutting down hooks server...")

				err := app.Shutdown()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to shut down server", "error", err)
				}
			}()

			err := app.Listen(":" + strconv.Itoa(command.Int("port")))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start hooks server", "error", err)

				return err
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		os.Exit(1)
	}
}
