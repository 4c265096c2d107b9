// Package updatefield implements the update_field action: set one field on
// the triggering entity.
package updatefield

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flowpilot-io/flowpilot/pkg/actions"
	"github.com/flowpilot-io/flowpilot/pkg/models"
)

// immutableFields can never be targeted by an update_field step, on any
// entity type.
var immutableFields = map[string]bool{
	"id":          true,
	"entity_type": true,
	"created_at":  true,
	"updated_at":  true,
}

type UpdateFieldAction struct {
	Field   string
	Value   any
	records actions.RecordStore
}

func NewUpdateFieldAction(config map[string]any, records actions.RecordStore) (*UpdateFieldAction, error) {
	field, _ := config["field"].(string)
	if field == "" {
		return nil, fmt.Errorf("%w: update_field requires a field", actions.ErrValidation)
	}

	if immutableFields[field] {
		return nil, fmt.Errorf("%w: field %q is not mutable", actions.ErrValidation, field)
	}

	return &UpdateFieldAction{
		Field:   field,
		Value:   config["value"],
		records: records,
	}, nil
}

func (a *UpdateFieldAction) Execute(ctx context.Context, run *models.RunContext, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("action_type", "update_field", "field", a.Field)

	err := a.records.UpdateField(ctx, run.EntityType, run.EntityID, a.Field, a.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to update %s.%s: %w", run.EntityType, a.Field, err)
	}

	// Keep the run context in sync so later condition steps see the new
	// value.
	run.Context[a.Field] = a.Value

	logger.InfoContext(ctx, "Updated entity field", "entity_id", run.EntityID)

	return map[string]any{a.Field: a.Value}, nil
}
