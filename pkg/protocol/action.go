// Package protocol defines the contract pluggable action handlers implement.
package protocol

import (
	"context"
	"log/slog"

	"github.com/dukex/flowbox/pkg/models"
)

// Action performs the external side effect of one stage. Delivery is
// at-least-once, so Execute may run more than once for the same stage of the
// same run and must tolerate the duplicate.
type Action interface {
	Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (any, error)
}

// ActionFactory creates handler instances for one handler kind. The config
// passed to Create is the stage's parameter template map; templates are
// resolved by the action itself against the run context at execution time.
type ActionFactory interface {
	Create(config map[string]string) (Action, error)
	ID() string
}
