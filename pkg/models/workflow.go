// Package models defines the core domain models for rule-driven workflow
// automation and webhook delivery.
package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// EntityType identifies the kind of business record a workflow acts on.
type EntityType string

const (
	EntityTypeContact EntityType = "contact"
	EntityTypeLead    EntityType = "lead"
	EntityTypeDeal    EntityType = "deal"
	EntityTypeCompany EntityType = "company"
	EntityTypeTask    EntityType = "task"
)

// TriggerType identifies what starts a workflow run.
type TriggerType string

const (
	TriggerTypeCreate    TriggerType = "create"
	TriggerTypeUpdate    TriggerType = "update"
	TriggerTypeDelete    TriggerType = "delete"
	TriggerTypeTimeBased TriggerType = "time_based"
	TriggerTypeManual    TriggerType = "manual"
)

var validEntityTypes = map[EntityType]bool{
	EntityTypeContact: true,
	EntityTypeLead:    true,
	EntityTypeDeal:    true,
	EntityTypeCompany: true,
	EntityTypeTask:    true,
}

var validTriggerTypes = map[TriggerType]bool{
	TriggerTypeCreate:    true,
	TriggerTypeUpdate:    true,
	TriggerTypeDelete:    true,
	TriggerTypeTimeBased: true,
	TriggerTypeManual:    true,
}

// Workflow is a named, ordered pipeline of steps bound to an entity type and
// a trigger. Steps are replaced wholesale on update; in-flight runs keep the
// step snapshot they started with.
type Workflow struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"           validate:"required,min=3"`
	EntityType    EntityType     `json:"entity_type"    validate:"required"`
	TriggerType   TriggerType    `json:"trigger_type"   validate:"required"`
	TriggerConfig map[string]any `json:"trigger_config,omitempty"`
	IsActive      bool           `json:"is_active"`
	Steps         []*Step        `json:"steps"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

var (
	ErrInvalidEntityType  = errors.New("invalid entity type")
	ErrInvalidTriggerType = errors.New("invalid trigger type")
	ErrStepPositions      = errors.New("step positions must be contiguous starting at zero")
)

// Validate checks the workflow definition, including every step config and
// the step-position invariant.
func (w *Workflow) Validate() error {
	if !validEntityTypes[w.EntityType] {
		return fmt.Errorf("%w: %q", ErrInvalidEntityType, w.EntityType)
	}

	if !validTriggerTypes[w.TriggerType] {
		return fmt.Errorf("%w: %q", ErrInvalidTriggerType, w.TriggerType)
	}

	if w.TriggerType == TriggerTypeTimeBased {
		expr, _ := w.TriggerConfig["cron"].(string)
		if expr == "" {
			return errors.New("time_based workflows require a cron expression in trigger_config")
		}

		if _, err := cron.ParseStandard(expr); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", expr, err)
		}
	}

	for i, step := range w.Steps {
		if step.Position != i {
			return fmt.Errorf("%w: step %d has position %d", ErrStepPositions, i, step.Position)
		}

		if err := step.Validate(); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}

	return nil
}

// CronExpression returns the schedule for time_based workflows.
func (w *Workflow) CronExpression() string {
	expr, _ := w.TriggerConfig["cron"].(string)

	return expr
}
