package assignuser

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowpilot-io/flowpilot/pkg/actions"
	"github.com/flowpilot-io/flowpilot/pkg/models"
	"github.com/flowpilot-io/flowpilot/pkg/rotation"
)

type fakeRecordStore struct {
	owners map[string]string
	err    error
}

func (s *fakeRecordStore) UpdateField(context.Context, models.EntityType, string, string, any) error {
	return nil
}

func (s *fakeRecordStore) AssignOwner(_ context.Context, _ models.EntityType, entityID, userID string) error {
	if s.err != nil {
		return s.err
	}

	s.owners[entityID] = userID

	return nil
}

type failingRotation struct{}

func (failingRotation) Next(context.Context, string, int) (int, error) {
	return 0, errors.New("redis down")
}

func (failingRotation) Reset(context.Context, string) error {
	return nil
}

func leadRun(workflowID, entityID string) *models.RunContext {
	return &models.RunContext{
		WorkflowID: workflowID,
		RunID:      "run-" + entityID,
		EntityType: models.EntityTypeLead,
		EntityID:   entityID,
		Context:    map[string]any{},
	}
}

func TestNewAssignUserAction(t *testing.T) {
	store := &fakeRecordStore{owners: map[string]string{}}

	_, err := NewAssignUserAction(map[string]any{"strategy": "specific"}, store, rotation.NewMemoryStore())
	assert.ErrorIs(t, err, actions.ErrValidation)

	_, err = NewAssignUserAction(map[string]any{"strategy": "round_robin", "pool": []any{}}, store, rotation.NewMemoryStore())
	assert.ErrorIs(t, err, actions.ErrValidation)

	_, err = NewAssignUserAction(map[string]any{"strategy": "random"}, store, rotation.NewMemoryStore())
	assert.ErrorIs(t, err, actions.ErrValidation)
}

func TestAssignSpecificUser(t *testing.T) {
	store := &fakeRecordStore{owners: map[string]string{}}
	action, err := NewAssignUserAction(map[string]any{"strategy": "specific", "user_id": "u-9"}, store, rotation.NewMemoryStore())
	require.NoError(t, err)

	run := leadRun("wf-1", "lead-1")

	output, err := action.Execute(t.Context(), run, slog.Default())
	require.NoError(t, err)

	assert.Equal(t, "u-9", store.owners["lead-1"])
	assert.Equal(t, "u-9", run.Context["owner_id"])
	assert.Equal(t, "u-9", output["assigned_user_id"])
}

func TestAssignRoundRobinCycles(t *testing.T) {
	store := &fakeRecordStore{owners: map[string]string{}}
	rotationStore := rotation.NewMemoryStore()

	action, err := NewAssignUserAction(map[string]any{
		"strategy": "round_robin",
		"pool":     []any{"u-1", "u-2", "u-3"},
	}, store, rotationStore)
	require.NoError(t, err)

	var assigned []string

	for i := range 4 {
		run := leadRun("wf-1", "lead-"+string(rune('a'+i)))

		output, err := action.Execute(t.Context(), run, slog.Default())
		require.NoError(t, err)

		assigned = append(assigned, output["assigned_user_id"].(string))
	}

	assert.Equal(t, []string{"u-1", "u-2", "u-3", "u-1"}, assigned)
}

func TestAssignRoundRobinScopedPerWorkflow(t *testing.T) {
	store := &fakeRecordStore{owners: map[string]string{}}
	rotationStore := rotation.NewMemoryStore()

	action, err := NewAssignUserAction(map[string]any{
		"strategy": "round_robin",
		"pool":     []any{"u-1", "u-2"},
	}, store, rotationStore)
	require.NoError(t, err)

	first, err := action.Execute(t.Context(), leadRun("wf-1", "lead-a"), slog.Default())
	require.NoError(t, err)

	other, err := action.Execute(t.Context(), leadRun("wf-2", "lead-b"), slog.Default())
	require.NoError(t, err)

	// Separate workflows rotate independently, both starting at the top.
	assert.Equal(t, "u-1", first["assigned_user_id"])
	assert.Equal(t, "u-1", other["assigned_user_id"])
}

func TestAssignRoundRobinRotationError(t *testing.T) {
	store := &fakeRecordStore{owners: map[string]string{}}
	action, err := NewAssignUserAction(map[string]any{
		"strategy": "round_robin",
		"pool":     []any{"u-1", "u-2"},
	}, store, failingRotation{})
	require.NoError(t, err)

	_, err = action.Execute(t.Context(), leadRun("wf-1", "lead-a"), slog.Default())
	assert.ErrorIs(t, err, actions.ErrDependency)
}
