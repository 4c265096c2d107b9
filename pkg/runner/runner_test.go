package runner

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowpilot-io/flowpilot/pkg/actions"
	"github.com/flowpilot-io/flowpilot/pkg/actions/sendemail"
	"github.com/flowpilot-io/flowpilot/pkg/actions/updatefield"
	"github.com/flowpilot-io/flowpilot/pkg/eventbus"
	"github.com/flowpilot-io/flowpilot/pkg/models"
	"github.com/flowpilot-io/flowpilot/pkg/persistence/memory"
)

type fakeRecordStore struct {
	updates []string
}

func (s *fakeRecordStore) UpdateField(_ context.Context, entityType models.EntityType, entityID, field string, value any) error {
	s.updates = append(s.updates, fmt.Sprintf("%s/%s.%s=%v", entityType, entityID, field, value))

	return nil
}

func (s *fakeRecordStore) AssignOwner(context.Context, models.EntityType, string, string) error {
	return nil
}

// flakyFactory builds an action that fails a configured number of times
// before succeeding.
type flakyFactory struct {
	failures int
	err      error

	attempts int
}

func (f *flakyFactory) ID() models.ActionType { return models.ActionTypeCreateTask }

func (f *flakyFactory) Create(map[string]any) (actions.Action, error) {
	return flakyAction{f}, nil
}

type flakyAction struct{ factory *flakyFactory }

func (a flakyAction) Execute(context.Context, *models.RunContext, *slog.Logger) (map[string]any, error) {
	a.factory.attempts++

	if a.factory.attempts <= a.factory.failures {
		return nil, a.factory.err
	}

	return map[string]any{"task_id": "t-1"}, nil
}

type bestEffortFactory struct{}

func (bestEffortFactory) ID() models.ActionType { return models.ActionTypeSendEmail }

func (bestEffortFactory) Create(map[string]any) (actions.Action, error) {
	return bestEffortAction{}, nil
}

type bestEffortAction struct{}

func (bestEffortAction) Execute(context.Context, *models.RunContext, *slog.Logger) (map[string]any, error) {
	return map[string]any{sendemail.StatusKey: sendemail.StatusBestEffort}, nil
}

type capturingPublisher struct {
	events []eventbus.Event
}

func (p *capturingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.events = append(p.events, event)

	return nil
}

func (p *capturingPublisher) types() []string {
	var types []string
	for _, event := range p.events {
		types = append(types, string(event.GetType()))
	}

	return types
}

type harness struct {
	store     *memory.Persistence
	records   *fakeRecordStore
	publisher *capturingPublisher
	runner    *Runner
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	store := memory.NewPersistence()
	records := &fakeRecordStore{}
	publisher := &capturingPublisher{}

	registry := actions.NewRegistry(slog.Default())
	registry.Register(updatefield.NewActionFactory(records))

	opts = append([]Option{WithRetryDelay(0)}, opts...)

	return &harness{
		store:     store,
		records:   records,
		publisher: publisher,
		runner:    New(store, registry, publisher, nil, slog.Default(), opts...),
	}
}

func conditionStep(position int, field string, value any) *models.Step {
	return &models.Step{
		Position:  position,
		Kind:      models.StepKindCondition,
		Condition: &models.ConditionConfig{Field: field, Operator: models.OperatorEquals, Value: value},
	}
}

func updateFieldStep(position int, field string, value any) *models.Step {
	return &models.Step{
		Position: position,
		Kind:     models.StepKindAction,
		Action: &models.ActionConfig{
			Type:   models.ActionTypeUpdateField,
			Config: map[string]any{"field": field, "value": value},
		},
	}
}

func delayStep(position, duration int, unit models.DelayUnit) *models.Step {
	return &models.Step{
		Position: position,
		Kind:     models.StepKindDelay,
		Delay:    &models.DelayConfig{Duration: duration, Unit: unit},
	}
}

func dealWorkflow(steps ...*models.Step) *models.Workflow {
	return &models.Workflow{
		ID:          "wf-1",
		Name:        "deal pipeline",
		EntityType:  models.EntityTypeDeal,
		TriggerType: models.TriggerTypeUpdate,
		IsActive:    true,
		Steps:       steps,
	}
}

func dealEvent(snapshot map[string]any) models.EntityEvent {
	return models.EntityEvent{
		EntityType: models.EntityTypeDeal,
		EntityID:   "deal-42",
		Event:      models.TriggerTypeUpdate,
		Snapshot:   snapshot,
	}
}

func TestTriggerRunsToCompletion(t *testing.T) {
	h := newHarness(t)

	workflow := dealWorkflow(
		conditionStep(0, "status", "won"),
		updateFieldStep(1, "stage", "closed"),
	)

	run, err := h.runner.Trigger(t.Context(), workflow, dealEvent(map[string]any{"status": "won"}))
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.NotNil(t, run.CompletedAt)
	assert.Equal(t, "closed", run.Context["stage"])
	assert.Equal(t, []string{"deal/deal-42.stage=closed"}, h.records.updates)

	require.Len(t, run.Trace, 2)
	assert.Equal(t, models.StepOutcomeExecuted, run.Trace[0].Outcome)
	assert.Equal(t, models.StepOutcomeExecuted, run.Trace[1].Outcome)

	stored, err := h.store.Runs().ByID(t.Context(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, stored.Status)

	assert.Equal(t, []string{"run.started", "run.completed"}, h.publisher.types())
}

func TestTriggerShortCircuits(t *testing.T) {
	h := newHarness(t)

	workflow := dealWorkflow(
		conditionStep(0, "status", "won"),
		updateFieldStep(1, "stage", "closed"),
		updateFieldStep(2, "owner", "u-1"),
	)

	run, err := h.runner.Trigger(t.Context(), workflow, dealEvent(map[string]any{"status": "lost"}))
	require.NoError(t, err)

	// A false condition completes the run, it does not fail it.
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Empty(t, h.records.updates)

	require.Len(t, run.Trace, 3)
	assert.Equal(t, models.StepOutcomeShortCircuited, run.Trace[0].Outcome)
	assert.Equal(t, models.StepOutcomeSkipped, run.Trace[1].Outcome)
	assert.Equal(t, models.StepOutcomeSkipped, run.Trace[2].Outcome)
}

func TestTriggerMissingFieldFailsClosed(t *testing.T) {
	h := newHarness(t)

	workflow := dealWorkflow(
		conditionStep(0, "status", "won"),
		updateFieldStep(1, "stage", "closed"),
	)

	run, err := h.runner.Trigger(t.Context(), workflow, dealEvent(map[string]any{"amount": 100}))
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, models.StepOutcomeShortCircuited, run.Trace[0].Outcome)
	assert.Empty(t, h.records.updates)
}

func TestTriggerSuspendsOnDelay(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h := newHarness(t, WithClock(func() time.Time { return now }))

	workflow := dealWorkflow(
		updateFieldStep(0, "stage", "qualified"),
		delayStep(1, 2, models.DelayUnitHours),
		updateFieldStep(2, "stage", "closed"),
	)

	run, err := h.runner.Trigger(t.Context(), workflow, dealEvent(map[string]any{"status": "won"}))
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusWaiting, run.Status)
	require.NotNil(t, run.ResumeAt)
	assert.Equal(t, now.Add(2*time.Hour), *run.ResumeAt)
	assert.Equal(t, 2, run.Cursor, "cursor points past the delay")
	assert.Equal(t, []string{"deal/deal-42.stage=qualified"}, h.records.updates)

	assert.Equal(t, []string{"run.started", "run.paused"}, h.publisher.types())
}

func TestResumerSweepResumesDueRuns(t *testing.T) {
	h := newHarness(t)

	workflow := dealWorkflow(
		delayStep(0, 1, models.DelayUnitMinutes),
		updateFieldStep(1, "stage", "closed"),
	)

	run, err := h.runner.Trigger(t.Context(), workflow, dealEvent(map[string]any{"status": "won"}))
	require.NoError(t, err)
	require.Equal(t, models.RunStatusWaiting, run.Status)

	// Backdate the resume time so the sweep picks the run up.
	past := time.Now().UTC().Add(-time.Minute)
	run.ResumeAt = &past
	require.NoError(t, h.store.Runs().Save(t.Context(), run))

	resumer := NewResumer(h.store, h.runner, slog.Default())
	require.NoError(t, resumer.Sweep(t.Context()))

	stored, err := h.store.Runs().ByID(t.Context(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, stored.Status)
	assert.Equal(t, "closed", stored.Context["stage"])
	assert.Equal(t, []string{"deal/deal-42.stage=closed"}, h.records.updates)
}

func TestActionDependencyErrorIsRetried(t *testing.T) {
	h := newHarness(t)

	factory := &flakyFactory{failures: 2, err: fmt.Errorf("%w: task service down", actions.ErrDependency)}
	h.runner.registry.Register(factory)

	workflow := dealWorkflow(&models.Step{
		Position: 0,
		Kind:     models.StepKindAction,
		Action:   &models.ActionConfig{Type: models.ActionTypeCreateTask, Config: map[string]any{"title": "Follow up"}},
	})

	run, err := h.runner.Trigger(t.Context(), workflow, dealEvent(nil))
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 3, factory.attempts, "two failures then success")
	assert.Equal(t, "t-1", run.Context["task_id"])
}

func TestActionDependencyErrorExhaustsRetries(t *testing.T) {
	h := newHarness(t)

	factory := &flakyFactory{failures: 10, err: fmt.Errorf("%w: task service down", actions.ErrDependency)}
	h.runner.registry.Register(factory)

	workflow := dealWorkflow(&models.Step{
		Position: 0,
		Kind:     models.StepKindAction,
		Action:   &models.ActionConfig{Type: models.ActionTypeCreateTask, Config: map[string]any{"title": "Follow up"}},
	})

	run, err := h.runner.Trigger(t.Context(), workflow, dealEvent(nil))
	require.NoError(t, err, "a failed run is a terminal outcome, not an error")

	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Equal(t, actionMaxAttempts, factory.attempts)
	assert.Contains(t, run.ErrorMessage, "task service down")
	assert.Equal(t, models.StepOutcomeFailed, run.Trace[0].Outcome)

	assert.Equal(t, []string{"run.started", "run.failed"}, h.publisher.types())
}

func TestActionValidationErrorFailsImmediately(t *testing.T) {
	h := newHarness(t)

	factory := &flakyFactory{failures: 10, err: fmt.Errorf("%w: bad config", actions.ErrValidation)}
	h.runner.registry.Register(factory)

	workflow := dealWorkflow(&models.Step{
		Position: 0,
		Kind:     models.StepKindAction,
		Action:   &models.ActionConfig{Type: models.ActionTypeCreateTask, Config: map[string]any{}},
	})

	run, err := h.runner.Trigger(t.Context(), workflow, dealEvent(nil))
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Equal(t, 1, factory.attempts, "validation errors never retry")
}

func TestBestEffortActionOutcome(t *testing.T) {
	h := newHarness(t)
	h.runner.registry.Register(bestEffortFactory{})

	workflow := dealWorkflow(&models.Step{
		Position: 0,
		Kind:     models.StepKindAction,
		Action:   &models.ActionConfig{Type: models.ActionTypeSendEmail, Config: map[string]any{}},
	})

	run, err := h.runner.Trigger(t.Context(), workflow, dealEvent(nil))
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, models.StepOutcomeBestEffort, run.Trace[0].Outcome)
}

func TestRunSnapshotIgnoresDefinitionUpdates(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h := newHarness(t, WithClock(func() time.Time { return now }))

	workflow := dealWorkflow(
		delayStep(0, 1, models.DelayUnitMinutes),
		updateFieldStep(1, "stage", "closed"),
	)

	run, err := h.runner.Trigger(t.Context(), workflow, dealEvent(nil))
	require.NoError(t, err)
	require.Equal(t, models.RunStatusWaiting, run.Status)

	// The definition changes while the run sleeps.
	workflow.Steps = []*models.Step{updateFieldStep(0, "stage", "reopened")}

	require.NoError(t, h.runner.Resume(t.Context(), run))

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, []string{"deal/deal-42.stage=closed"}, h.records.updates, "the run keeps its step snapshot")
}
