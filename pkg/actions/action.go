// Package actions defines the action contract, the collaborator interfaces
// actions operate against, and the registry that maps action types to
// factories.
package actions

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flowpilot-io/flowpilot/pkg/models"
)

// Action performs one side-effecting operation against the entity named in
// the run context.
type Action interface {
	Execute(ctx context.Context, run *models.RunContext, logger *slog.Logger) (map[string]any, error)
}

// Factory builds an action from its step configuration. Create returns a
// ValidationError for malformed config.
type Factory interface {
	ID() models.ActionType
	Create(config map[string]any) (Action, error)
}

// Registry maps action types to their factories.
type Registry struct {
	logger    *slog.Logger
	factories map[models.ActionType]Factory
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		factories: make(map[models.ActionType]Factory),
	}
}

func (r *Registry) Register(factory Factory) {
	r.factories[factory.ID()] = factory
}

// Create builds an action of the given type from config.
func (r *Registry) Create(actionType models.ActionType, config map[string]any) (Action, error) {
	factory, ok := r.factories[actionType]
	if !ok {
		return nil, fmt.Errorf("%w: action type %q not registered", ErrValidation, actionType)
	}

	return factory.Create(config)
}
