package models

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// StepKind discriminates the step variant.
type StepKind string

const (
	StepKindCondition StepKind = "condition"
	StepKindAction    StepKind = "action"
	StepKindDelay     StepKind = "delay"
)

// ActionType is the closed set of side-effecting operations a workflow step
// may perform.
type ActionType string

const (
	ActionTypeUpdateField ActionType = "update_field"
	ActionTypeCreateTask  ActionType = "create_task"
	ActionTypeSendEmail   ActionType = "send_email"
	ActionTypeAssignUser  ActionType = "assign_user"
)

// Operator is a field-comparison operator for condition steps.
type Operator string

const (
	OperatorEquals      Operator = "equals"
	OperatorNotEquals   Operator = "not_equals"
	OperatorContains    Operator = "contains"
	OperatorGreaterThan Operator = "greater_than"
	OperatorLessThan    Operator = "less_than"
)

// DelayUnit is the unit a delay step's duration is interpreted in.
type DelayUnit string

const (
	DelayUnitMinutes DelayUnit = "minutes"
	DelayUnitHours   DelayUnit = "hours"
	DelayUnitDays    DelayUnit = "days"
)

// ConditionConfig compares one context field against a target value.
type ConditionConfig struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// ActionConfig carries the action type plus its type-specific configuration.
// The configuration shape is validated against the action's JSON schema at
// construction time, not duck-typed at execution time.
type ActionConfig struct {
	Type   ActionType     `json:"type"`
	Config map[string]any `json:"config"`
}

// DelayConfig suspends the run for a duration.
type DelayConfig struct {
	Duration int       `json:"duration"`
	Unit     DelayUnit `json:"unit"`
}

// Step is one unit of workflow execution: a tagged union over condition,
// action and delay variants. Exactly one of the config fields matching Kind
// is set.
type Step struct {
	ID        string           `json:"id"`
	Position  int              `json:"position"`
	Kind      StepKind         `json:"kind"`
	Condition *ConditionConfig `json:"condition,omitempty"`
	Action    *ActionConfig    `json:"action,omitempty"`
	Delay     *DelayConfig     `json:"delay,omitempty"`
}

var (
	ErrInvalidStepKind   = errors.New("invalid step kind")
	ErrStepConfigMissing = errors.New("step config does not match step kind")
	ErrInvalidStepConfig = errors.New("invalid step config")
)

var validOperators = map[Operator]bool{
	OperatorEquals:      true,
	OperatorNotEquals:   true,
	OperatorContains:    true,
	OperatorGreaterThan: true,
	OperatorLessThan:    true,
}

var validDelayUnits = map[DelayUnit]bool{
	DelayUnitMinutes: true,
	DelayUnitHours:   true,
	DelayUnitDays:    true,
}

// Validate checks the variant invariant and the kind-specific configuration.
func (s *Step) Validate() error {
	switch s.Kind {
	case StepKindCondition:
		if s.Condition == nil || s.Action != nil || s.Delay != nil {
			return ErrStepConfigMissing
		}

		if s.Condition.Field == "" {
			return fmt.Errorf("%w: condition field is required", ErrInvalidStepConfig)
		}

		if !validOperators[s.Condition.Operator] {
			return fmt.Errorf("%w: unknown operator %q", ErrInvalidStepConfig, s.Condition.Operator)
		}
	case StepKindAction:
		if s.Action == nil || s.Condition != nil || s.Delay != nil {
			return ErrStepConfigMissing
		}

		return validateActionConfig(s.Action)
	case StepKindDelay:
		if s.Delay == nil || s.Condition != nil || s.Action != nil {
			return ErrStepConfigMissing
		}

		if s.Delay.Duration <= 0 {
			return fmt.Errorf("%w: delay duration must be positive", ErrInvalidStepConfig)
		}

		if !validDelayUnits[s.Delay.Unit] {
			return fmt.Errorf("%w: unknown delay unit %q", ErrInvalidStepConfig, s.Delay.Unit)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStepKind, s.Kind)
	}

	return nil
}

// actionConfigSchemas holds the JSON schema for each action type's config
// payload.
var actionConfigSchemas = map[ActionType]map[string]any{
	ActionTypeUpdateField: {
		"type": "object",
		"properties": map[string]any{
			"field": map[string]any{"type": "string", "minLength": 1},
			"value": map[string]any{},
		},
		"required": []any{"field", "value"},
	},
	ActionTypeCreateTask: {
		"type": "object",
		"properties": map[string]any{
			"title":       map[string]any{"type": "string", "minLength": 1},
			"description": map[string]any{"type": "string"},
			"priority":    map[string]any{"type": "string", "enum": []any{"low", "medium", "high"}},
		},
		"required": []any{"title"},
	},
	ActionTypeSendEmail: {
		"type": "object",
		"properties": map[string]any{
			"template":  map[string]any{"type": "string", "minLength": 1},
			"recipient": map[string]any{"type": "string", "enum": []any{"owner", "contact"}},
		},
		"required": []any{"template", "recipient"},
	},
	ActionTypeAssignUser: {
		"type": "object",
		"properties": map[string]any{
			"strategy": map[string]any{"type": "string", "enum": []any{"round_robin", "specific"}},
			"user_id":  map[string]any{"type": "string"},
			"pool":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []any{"strategy"},
	},
}

func validateActionConfig(action *ActionConfig) error {
	schema, ok := actionConfigSchemas[action.Type]
	if !ok {
		return fmt.Errorf("%w: unknown action type %q", ErrInvalidStepConfig, action.Type)
	}

	config := action.Config
	if config == nil {
		config = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(config),
	)
	if err != nil {
		return fmt.Errorf("failed to validate %s config: %w", action.Type, err)
	}

	if !result.Valid() {
		return fmt.Errorf("%w: %s config: %s", ErrInvalidStepConfig, action.Type, result.Errors()[0].String())
	}

	return nil
}

// StepsFromJSON decodes and validates a full step list, enforcing the
// position invariant.
func StepsFromJSON(data []byte) ([]*Step, error) {
	var steps []*Step

	err := json.Unmarshal(data, &steps)
	if err != nil {
		return nil, fmt.Errorf("failed to decode steps: %w", err)
	}

	for i, step := range steps {
		if step.Position != i {
			return nil, fmt.Errorf("%w: step %d has position %d", ErrStepPositions, i, step.Position)
		}

		if err := step.Validate(); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	return steps, nil
}
