package createtask

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowpilot-io/flowpilot/pkg/actions"
	"github.com/flowpilot-io/flowpilot/pkg/models"
)

type fakeTaskCreator struct {
	created []actions.Task
	err     error
}

func (c *fakeTaskCreator) CreateTask(_ context.Context, task actions.Task) error {
	c.created = append(c.created, task)

	return c.err
}

func TestNewCreateTaskAction(t *testing.T) {
	_, err := NewCreateTaskAction(map[string]any{}, &fakeTaskCreator{})
	assert.ErrorIs(t, err, actions.ErrValidation)

	action, err := NewCreateTaskAction(map[string]any{"title": "Follow up"}, &fakeTaskCreator{})
	require.NoError(t, err)
	assert.Equal(t, "medium", action.Priority, "priority defaults to medium")
}

func TestCreateTaskExecute(t *testing.T) {
	creator := &fakeTaskCreator{}
	action, err := NewCreateTaskAction(map[string]any{
		"title":       "Follow up with {{.name}}",
		"description": "Deal worth {{.amount}}",
		"priority":    "high",
	}, creator)
	require.NoError(t, err)

	run := &models.RunContext{
		WorkflowID: "wf-1",
		RunID:      "run-1",
		EntityType: models.EntityTypeDeal,
		EntityID:   "deal-42",
		Context:    map[string]any{"name": "Acme", "amount": 5000},
	}

	output, err := action.Execute(t.Context(), run, slog.Default())
	require.NoError(t, err)

	require.Len(t, creator.created, 1)
	task := creator.created[0]
	assert.Equal(t, "Follow up with Acme", task.Title)
	assert.Equal(t, "Deal worth 5000", task.Description)
	assert.Equal(t, "high", task.Priority)
	assert.Equal(t, models.EntityTypeDeal, task.EntityType)
	assert.Equal(t, "deal-42", task.EntityID)

	assert.Equal(t, task.ID, output["task_id"])
}

func TestCreateTaskExecuteDependencyError(t *testing.T) {
	creator := &fakeTaskCreator{err: fmt.Errorf("%w: task service down", actions.ErrDependency)}
	action, err := NewCreateTaskAction(map[string]any{"title": "Follow up"}, creator)
	require.NoError(t, err)

	run := &models.RunContext{EntityType: models.EntityTypeLead, EntityID: "l-1", Context: map[string]any{}}

	_, err = action.Execute(t.Context(), run, slog.Default())
	assert.ErrorIs(t, err, actions.ErrDependency)
	assert.True(t, actions.IsRetryable(err))
}
