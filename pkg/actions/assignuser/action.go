// Package assignuser implements the assign_user action: resolve a target
// user and make them the owner of the triggering entity.
package assignuser

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flowpilot-io/flowpilot/pkg/actions"
	"github.com/flowpilot-io/flowpilot/pkg/models"
	"github.com/flowpilot-io/flowpilot/pkg/rotation"
)

const (
	StrategyRoundRobin = "round_robin"
	StrategySpecific   = "specific"
)

type AssignUserAction struct {
	Strategy string
	UserID   string
	Pool     []string

	records  actions.RecordStore
	rotation rotation.Store
}

func NewAssignUserAction(config map[string]any, records actions.RecordStore, rotationStore rotation.Store) (*AssignUserAction, error) {
	strategy, _ := config["strategy"].(string)

	action := &AssignUserAction{
		Strategy: strategy,
		records:  records,
		rotation: rotationStore,
	}

	switch strategy {
	case StrategySpecific:
		action.UserID, _ = config["user_id"].(string)
		if action.UserID == "" {
			return nil, fmt.Errorf("%w: assign_user with strategy specific requires user_id", actions.ErrValidation)
		}
	case StrategyRoundRobin:
		pool, _ := config["pool"].([]any)
		for _, entry := range pool {
			if userID, ok := entry.(string); ok && userID != "" {
				action.Pool = append(action.Pool, userID)
			}
		}

		if len(action.Pool) == 0 {
			return nil, fmt.Errorf("%w: assign_user round_robin pool is empty", actions.ErrValidation)
		}
	default:
		return nil, fmt.Errorf("%w: unknown assign_user strategy %q", actions.ErrValidation, strategy)
	}

	return action, nil
}

func (a *AssignUserAction) Execute(ctx context.Context, run *models.RunContext, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("action_type", "assign_user", "strategy", a.Strategy)

	userID := a.UserID

	if a.Strategy == StrategyRoundRobin {
		// Rotation state is scoped per workflow; two workflows sharing
		// a pool rotate independently.
		index, err := a.rotation.Next(ctx, run.WorkflowID, len(a.Pool))
		if err != nil {
			return nil, fmt.Errorf("%w: rotation store: %v", actions.ErrDependency, err)
		}

		userID = a.Pool[index]
	}

	err := a.records.AssignOwner(ctx, run.EntityType, run.EntityID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to assign %s %s to user %s: %w", run.EntityType, run.EntityID, userID, err)
	}

	run.Context["owner_id"] = userID

	logger.InfoContext(ctx, "Assigned user", "entity_id", run.EntityID, "user_id", userID)

	return map[string]any{"assigned_user_id": userID}, nil
}
