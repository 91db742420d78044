package cmd

import (
	"fmt"
	"log/slog"

	"github.com/dukex/flowbox/pkg/actions/email"
	"github.com/dukex/flowbox/pkg/actions/transfer"
	"github.com/dukex/flowbox/pkg/clients/ledger"
	"github.com/dukex/flowbox/pkg/clients/mail"
	"github.com/dukex/flowbox/pkg/idempotency"
	"github.com/dukex/flowbox/pkg/registry"
)

// RegistryConfig carries the external service settings the built-in action
// handlers need.
type RegistryConfig struct {
	LedgerURL    string
	LedgerAPIKey string
	RedisURL     string
	SMTP         mail.SMTPConfig
}

// NewRegistry builds the action registry with the built-in transfer and email
// handlers. Without a Redis URL the transfer effect guard is in-memory, which
// only dedupes within one process; production workers want Redis.
func NewRegistry(logger *slog.Logger, config RegistryConfig) *registry.Registry {
	reg := registry.NewRegistry(logger)

	var guard idempotency.Guard

	if config.RedisURL != "" {
		redisGuard, err := idempotency.NewRedisGuard(config.RedisURL)
		if err != nil {
			panic(fmt.Errorf("failed to connect effect guard to Redis: %w", err))
		}

		guard = redisGuard
	} else {
		logger.Warn("No Redis URL configured, using in-memory effect guard")

		guard = idempotency.NewMemoryGuard()
	}

	ledgerClient := ledger.NewHTTPClient(config.LedgerURL, config.LedgerAPIKey, logger)
	mailClient := mail.NewSMTPClient(config.SMTP, logger)

	reg.RegisterAction(transfer.NewActionFactory(ledgerClient, guard))
	reg.RegisterAction(email.NewActionFactory(mailClient))

	return reg
}
