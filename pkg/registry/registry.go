// Package registry dispatches handler kinds to their action factories.
package registry

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/flowbox/pkg/protocol"
)

// ErrUnregisteredAction classifies a handler kind nobody registered. Callers
// decide whether to skip the stage or fail; redelivering a message with an
// unknown kind can never succeed, so the worker surfaces it and moves on.
var ErrUnregisteredAction = errors.New("action kind not registered")

type Registry struct {
	logger          *slog.Logger
	actionFactories map[string]protocol.ActionFactory
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:          logger,
		actionFactories: make(map[string]protocol.ActionFactory),
	}
}

func (r *Registry) RegisterAction(factory protocol.ActionFactory) {
	r.actionFactories[factory.ID()] = factory
}

func (r *Registry) CreateAction(kind string, config map[string]string) (protocol.Action, error) {
	factory, ok := r.actionFactories[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnregisteredAction, kind)
	}

	return factory.Create(config)
}

// ActionKinds lists the registered handler kinds.
func (r *Registry) ActionKinds() []string {
	kinds := make([]string, 0, len(r.actionFactories))
	for kind := range r.actionFactories {
		kinds = append(kinds, kind)
	}

	return kinds
}
