package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepValidateExactlyOneConfig(t *testing.T) {
	tests := []struct {
		name string
		step Step
		err  error
	}{
		{
			name: "condition with action config",
			step: Step{
				Kind:      StepKindCondition,
				Condition: &ConditionConfig{Field: "status", Operator: OperatorEquals, Value: "won"},
				Action:    &ActionConfig{Type: ActionTypeUpdateField},
			},
			err: ErrStepConfigMissing,
		},
		{
			name: "action without config",
			step: Step{Kind: StepKindAction},
			err:  ErrStepConfigMissing,
		},
		{
			name: "delay with condition config",
			step: Step{
				Kind:      StepKindDelay,
				Delay:     &DelayConfig{Duration: 1, Unit: DelayUnitHours},
				Condition: &ConditionConfig{Field: "x", Operator: OperatorEquals},
			},
			err: ErrStepConfigMissing,
		},
		{
			name: "unknown kind",
			step: Step{Kind: "branch"},
			err:  ErrInvalidStepKind,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.step.Validate(), tt.err)
		})
	}
}

func TestStepValidateCondition(t *testing.T) {
	step := Step{
		Kind:      StepKindCondition,
		Condition: &ConditionConfig{Field: "amount", Operator: "between", Value: 10},
	}

	assert.ErrorIs(t, step.Validate(), ErrInvalidStepConfig)

	step.Condition.Operator = OperatorGreaterThan
	require.NoError(t, step.Validate())
}

func TestStepValidateDelay(t *testing.T) {
	step := Step{Kind: StepKindDelay, Delay: &DelayConfig{Duration: 0, Unit: DelayUnitDays}}
	assert.ErrorIs(t, step.Validate(), ErrInvalidStepConfig)

	step.Delay.Duration = 3
	step.Delay.Unit = "weeks"
	assert.ErrorIs(t, step.Validate(), ErrInvalidStepConfig)

	step.Delay.Unit = DelayUnitDays
	require.NoError(t, step.Validate())
}

func TestStepValidateActionConfigSchema(t *testing.T) {
	tests := []struct {
		name   string
		action ActionConfig
		ok     bool
	}{
		{
			name:   "update_field valid",
			action: ActionConfig{Type: ActionTypeUpdateField, Config: map[string]any{"field": "stage", "value": "closed"}},
			ok:     true,
		},
		{
			name:   "update_field missing value",
			action: ActionConfig{Type: ActionTypeUpdateField, Config: map[string]any{"field": "stage"}},
			ok:     false,
		},
		{
			name:   "create_task valid",
			action: ActionConfig{Type: ActionTypeCreateTask, Config: map[string]any{"title": "Follow up", "priority": "high"}},
			ok:     true,
		},
		{
			name:   "create_task bad priority",
			action: ActionConfig{Type: ActionTypeCreateTask, Config: map[string]any{"title": "Follow up", "priority": "urgent"}},
			ok:     false,
		},
		{
			name:   "send_email valid",
			action: ActionConfig{Type: ActionTypeSendEmail, Config: map[string]any{"template": "welcome", "recipient": "owner"}},
			ok:     true,
		},
		{
			name:   "send_email bad recipient",
			action: ActionConfig{Type: ActionTypeSendEmail, Config: map[string]any{"template": "welcome", "recipient": "ceo"}},
			ok:     false,
		},
		{
			name:   "assign_user valid round robin",
			action: ActionConfig{Type: ActionTypeAssignUser, Config: map[string]any{"strategy": "round_robin", "pool": []any{"u1", "u2"}}},
			ok:     true,
		},
		{
			name:   "unknown action type",
			action: ActionConfig{Type: "delete_record", Config: map[string]any{}},
			ok:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := Step{Kind: StepKindAction, Action: &tt.action}

			err := step.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidStepConfig)
			}
		})
	}
}

func TestStepsFromJSON(t *testing.T) {
	data := []byte(`[
		{"position": 0, "kind": "condition", "condition": {"field": "status", "operator": "equals", "value": "won"}},
		{"position": 1, "kind": "delay", "delay": {"duration": 2, "unit": "hours"}}
	]`)

	steps, err := StepsFromJSON(data)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, StepKindDelay, steps[1].Kind)

	_, err = StepsFromJSON([]byte(`[{"position": 1, "kind": "delay", "delay": {"duration": 2, "unit": "hours"}}]`))
	assert.ErrorIs(t, err, ErrStepPositions)
}
