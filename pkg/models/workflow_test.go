package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validWorkflow() *Workflow {
	return &Workflow{
		Name:        "High-value deal alert",
		EntityType:  EntityTypeDeal,
		TriggerType: TriggerTypeUpdate,
		IsActive:    true,
		Steps: []*Step{
			{
				Position:  0,
				Kind:      StepKindCondition,
				Condition: &ConditionConfig{Field: "status", Operator: OperatorEquals, Value: "won"},
			},
			{
				Position: 1,
				Kind:     StepKindAction,
				Action: &ActionConfig{
					Type:   ActionTypeUpdateField,
					Config: map[string]any{"field": "stage", "value": "closed"},
				},
			},
		},
	}
}

func TestWorkflowValidate(t *testing.T) {
	require.NoError(t, validWorkflow().Validate())
}

func TestWorkflowValidateEntityType(t *testing.T) {
	workflow := validWorkflow()
	workflow.EntityType = "invoice"

	assert.ErrorIs(t, workflow.Validate(), ErrInvalidEntityType)
}

func TestWorkflowValidateTriggerType(t *testing.T) {
	workflow := validWorkflow()
	workflow.TriggerType = "on_save"

	assert.ErrorIs(t, workflow.Validate(), ErrInvalidTriggerType)
}

func TestWorkflowValidateStepPositions(t *testing.T) {
	workflow := validWorkflow()
	workflow.Steps[1].Position = 5

	assert.ErrorIs(t, workflow.Validate(), ErrStepPositions)
}

func TestWorkflowValidateTimeBased(t *testing.T) {
	workflow := validWorkflow()
	workflow.TriggerType = TriggerTypeTimeBased

	err := workflow.Validate()
	require.Error(t, err, "missing cron expression must be rejected")

	workflow.TriggerConfig = map[string]any{"cron": "not a schedule"}
	require.Error(t, workflow.Validate())

	workflow.TriggerConfig = map[string]any{"cron": "0 9 * * 1"}
	require.NoError(t, workflow.Validate())
	assert.Equal(t, "0 9 * * 1", workflow.CronExpression())
}
