package runner

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowpilot-io/flowpilot/pkg/actions"
	"github.com/flowpilot-io/flowpilot/pkg/actions/updatefield"
	"github.com/flowpilot-io/flowpilot/pkg/models"
)

func newSimulator(records *fakeRecordStore) *Simulator {
	registry := actions.NewRegistry(slog.Default())
	registry.Register(updatefield.NewActionFactory(records))

	return NewSimulator(registry, slog.Default())
}

func TestSimulatorPreviewsWithoutSideEffects(t *testing.T) {
	records := &fakeRecordStore{}
	simulator := newSimulator(records)

	workflow := dealWorkflow(
		conditionStep(0, "status", "won"),
		updateFieldStep(1, "stage", "closed"),
		delayStep(2, 1, models.DelayUnitDays),
	)

	report, err := simulator.Test(t.Context(), workflow, map[string]any{"status": "won"})
	require.NoError(t, err)

	require.Len(t, report.Steps, 3)
	assert.Equal(t, "would pass", report.Steps[0].Result)
	assert.Equal(t, "would execute", report.Steps[1].Result)
	assert.Equal(t, "would pause", report.Steps[2].Result)

	assert.Empty(t, records.updates, "dry runs never touch collaborators")
}

func TestSimulatorShortCircuit(t *testing.T) {
	simulator := newSimulator(&fakeRecordStore{})

	workflow := dealWorkflow(
		conditionStep(0, "status", "won"),
		updateFieldStep(1, "stage", "closed"),
		updateFieldStep(2, "owner", "u-1"),
	)

	report, err := simulator.Test(t.Context(), workflow, map[string]any{"status": "lost"})
	require.NoError(t, err)

	require.Len(t, report.Steps, 3)
	assert.Equal(t, "would short-circuit", report.Steps[0].Result)
	assert.Equal(t, "would skip", report.Steps[1].Result)
	assert.Equal(t, "would skip", report.Steps[2].Result)
}

func TestSimulatorAppliesFieldUpdatesLocally(t *testing.T) {
	simulator := newSimulator(&fakeRecordStore{})

	// The second condition only passes because the simulated update is
	// visible to it.
	workflow := dealWorkflow(
		updateFieldStep(0, "stage", "closed"),
		conditionStep(1, "stage", "closed"),
	)

	sample := map[string]any{"stage": "open"}

	report, err := simulator.Test(t.Context(), workflow, sample)
	require.NoError(t, err)

	assert.Equal(t, "would pass", report.Steps[1].Result)
	assert.Equal(t, "closed", report.Context["stage"])
	assert.Equal(t, "open", sample["stage"], "the caller's sample stays untouched")
}

func TestSimulatorSurfacesConfigErrors(t *testing.T) {
	simulator := newSimulator(&fakeRecordStore{})

	workflow := dealWorkflow(&models.Step{
		Position: 0,
		Kind:     models.StepKindAction,
		Action: &models.ActionConfig{
			Type:   models.ActionTypeUpdateField,
			Config: map[string]any{"value": "x"},
		},
	})

	report, err := simulator.Test(t.Context(), workflow, nil)
	require.NoError(t, err)

	require.Len(t, report.Steps, 1)
	assert.Equal(t, "would fail", report.Steps[0].Result)
	assert.NotEmpty(t, report.Steps[0].Detail)
}
