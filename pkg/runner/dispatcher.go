package runner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flowpilot-io/flowpilot/pkg/events"
	"github.com/flowpilot-io/flowpilot/pkg/models"
	"github.com/flowpilot-io/flowpilot/pkg/persistence"
)

// TriggerDispatcher fans entity lifecycle events out to every active
// workflow whose entity type and trigger match.
type TriggerDispatcher struct {
	persistence persistence.Persistence
	runner      *Runner
	logger      *slog.Logger
}

func NewTriggerDispatcher(persistence persistence.Persistence, runner *Runner, logger *slog.Logger) *TriggerDispatcher {
	return &TriggerDispatcher{
		persistence: persistence,
		runner:      runner,
		logger:      logger.With("module", "trigger-dispatcher"),
	}
}

// HandleEntityChanged is the bus handler for entity lifecycle events. One
// workflow failing to trigger never blocks the others.
func (d *TriggerDispatcher) HandleEntityChanged(ctx context.Context, event any) error {
	changed, ok := event.(*events.EntityChanged)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", event)
	}

	workflows, err := d.persistence.Workflows().ActiveByTrigger(ctx, changed.EntityType, changed.Change)
	if err != nil {
		return fmt.Errorf("failed to match workflows: %w", err)
	}

	for _, workflow := range workflows {
		_, err := d.runner.Trigger(ctx, workflow, changed.EntityEvent())
		if err != nil {
			d.logger.ErrorContext(ctx, "Failed to trigger workflow",
				"workflow_id", workflow.ID, "entity_type", changed.EntityType,
				"entity_id", changed.EntityID, "error", err)
		}
	}

	return nil
}

// TriggerTimeBased starts a run for every active cron-triggered workflow
// whose schedule has fired. Time-based runs carry no triggering entity;
// actions resolve their target from the workflow's trigger config.
func (d *TriggerDispatcher) TriggerTimeBased(ctx context.Context, workflow *models.Workflow) error {
	entityID, _ := workflow.TriggerConfig["entity_id"].(string)
	snapshot, _ := workflow.TriggerConfig["context"].(map[string]any)

	_, err := d.runner.Trigger(ctx, workflow, models.EntityEvent{
		EntityType: workflow.EntityType,
		EntityID:   entityID,
		Event:      models.TriggerTypeTimeBased,
		Snapshot:   snapshot,
	})
	if err != nil {
		return fmt.Errorf("failed to trigger time-based workflow %s: %w", workflow.ID, err)
	}

	return nil
}
