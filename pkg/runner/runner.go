// Package runner executes workflow runs: it walks the run's step snapshot
// from the persisted cursor, evaluating conditions, executing actions and
// suspending on delays.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/flowpilot-io/flowpilot/pkg/actions"
	"github.com/flowpilot-io/flowpilot/pkg/actions/sendemail"
	"github.com/flowpilot-io/flowpilot/pkg/condition"
	"github.com/flowpilot-io/flowpilot/pkg/eventbus"
	"github.com/flowpilot-io/flowpilot/pkg/events"
	"github.com/flowpilot-io/flowpilot/pkg/models"
	"github.com/flowpilot-io/flowpilot/pkg/otelhelper"
	"github.com/flowpilot-io/flowpilot/pkg/persistence"
)

// actionMaxAttempts bounds step-level retries of dependency errors before
// the run fails.
const actionMaxAttempts = 3

// Runner drives workflow runs through their state machine. A run is mutated
// only here; everything else reads it.
type Runner struct {
	persistence persistence.Persistence
	registry    *actions.Registry
	publisher   eventbus.EventPublisher
	tracer      trace.Tracer
	logger      *slog.Logger

	retryDelay time.Duration
	now        func() time.Time
}

// Option adjusts runner behavior, mostly for tests.
type Option func(*Runner)

// WithRetryDelay sets the fixed pause between retries of a dependency error.
func WithRetryDelay(d time.Duration) Option {
	return func(r *Runner) {
		r.retryDelay = d
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

func New(
	persistence persistence.Persistence,
	registry *actions.Registry,
	publisher eventbus.EventPublisher,
	tracer trace.Tracer,
	logger *slog.Logger,
	opts ...Option,
) *Runner {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("runner")
	}

	r := &Runner{
		persistence: persistence,
		registry:    registry,
		publisher:   publisher,
		tracer:      tracer,
		logger:      logger.With("module", "runner"),
		retryDelay:  2 * time.Second,
		now:         func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Trigger starts a new run of the workflow for the triggering entity. The
// run snapshots the workflow's current step list; later definition updates
// never affect it.
func (r *Runner) Trigger(ctx context.Context, workflow *models.Workflow, event models.EntityEvent) (*models.WorkflowRun, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate run ID: %w", err)
	}

	runContext := maps.Clone(event.Snapshot)
	if runContext == nil {
		runContext = map[string]any{}
	}

	run := &models.WorkflowRun{
		ID:         id.String(),
		WorkflowID: workflow.ID,
		EntityType: event.EntityType,
		EntityID:   event.EntityID,
		Status:     models.RunStatusRunning,
		Cursor:     0,
		Steps:      workflow.Steps,
		Context:    runContext,
		Trace:      []models.StepTrace{},
		StartedAt:  r.now(),
	}

	err = r.persistence.Runs().Save(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("failed to persist run: %w", err)
	}

	r.publish(ctx, run.WorkflowID, events.RunStarted{
		BaseEvent:  events.NewBaseEvent(events.RunStartedEvent),
		RunID:      run.ID,
		WorkflowID: run.WorkflowID,
		EntityType: run.EntityType,
		EntityID:   run.EntityID,
	})

	r.logger.InfoContext(ctx, "Run started",
		"run_id", run.ID, "workflow_id", run.WorkflowID,
		"entity_type", run.EntityType, "entity_id", run.EntityID)

	err = r.advance(ctx, run)
	if err != nil {
		return nil, err
	}

	return run, nil
}

// Resume continues a run the resume sweep has claimed back to running.
func (r *Runner) Resume(ctx context.Context, run *models.WorkflowRun) error {
	r.publish(ctx, run.WorkflowID, events.RunResumed{
		BaseEvent:  events.NewBaseEvent(events.RunResumedEvent),
		RunID:      run.ID,
		WorkflowID: run.WorkflowID,
	})

	r.logger.InfoContext(ctx, "Run resumed", "run_id", run.ID, "workflow_id", run.WorkflowID)

	return r.advance(ctx, run)
}

// advance walks steps from the cursor until the run completes, fails or
// suspends on a delay. The run is checkpointed after every step so a crash
// never replays a completed action.
func (r *Runner) advance(ctx context.Context, run *models.WorkflowRun) error {
	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "runner.advance",
		otelhelper.RunAttrs(run.ID, run.WorkflowID)...)
	defer span.End()

	for run.Cursor < len(run.Steps) {
		step := run.Steps[run.Cursor]

		switch step.Kind {
		case models.StepKindCondition:
			if !condition.Evaluate(run.Context[step.Condition.Field], step.Condition.Operator, step.Condition.Value) {
				return r.shortCircuit(ctx, run, step)
			}

			run.AppendTrace(step.Position, models.StepOutcomeExecuted, "", "condition satisfied")
		case models.StepKindAction:
			output, err := r.executeAction(ctx, run, step)
			if err != nil {
				run.AppendTrace(step.Position, models.StepOutcomeFailed, err.Error(), string(step.Action.Type))

				return r.fail(ctx, run, err)
			}

			outcome := models.StepOutcomeExecuted
			if output[sendemail.StatusKey] == sendemail.StatusBestEffort {
				outcome = models.StepOutcomeBestEffort
			}

			maps.Copy(run.Context, output)
			run.AppendTrace(step.Position, outcome, "", string(step.Action.Type))
		case models.StepKindDelay:
			return r.suspend(ctx, run, step)
		default:
			return r.fail(ctx, run, fmt.Errorf("%w: %q", models.ErrInvalidStepKind, step.Kind))
		}

		run.Cursor++

		err := r.persistence.Runs().Save(ctx, run)
		if err != nil {
			return fmt.Errorf("failed to checkpoint run: %w", err)
		}
	}

	return r.complete(ctx, run)
}

// shortCircuit completes the run early on a false condition; every later
// step is traced as skipped.
func (r *Runner) shortCircuit(ctx context.Context, run *models.WorkflowRun, step *models.Step) error {
	detail := fmt.Sprintf("field %q %s target not satisfied", step.Condition.Field, step.Condition.Operator)
	run.AppendTrace(step.Position, models.StepOutcomeShortCircuited, "", detail)

	for _, rest := range run.Steps[run.Cursor+1:] {
		run.AppendTrace(rest.Position, models.StepOutcomeSkipped, "", "")
	}

	run.Cursor = len(run.Steps)

	return r.complete(ctx, run)
}

func (r *Runner) suspend(ctx context.Context, run *models.WorkflowRun, step *models.Step) error {
	resumeAt := r.now().Add(delayDuration(step.Delay))

	// Cursor already points past the delay so the resumed run never
	// re-enters it.
	run.Cursor++
	run.Status = models.RunStatusWaiting
	run.ResumeAt = &resumeAt
	run.AppendTrace(step.Position, models.StepOutcomeWaiting, "",
		fmt.Sprintf("waiting %d %s", step.Delay.Duration, step.Delay.Unit))

	err := r.persistence.Runs().Save(ctx, run)
	if err != nil {
		return fmt.Errorf("failed to suspend run: %w", err)
	}

	r.publish(ctx, run.WorkflowID, events.RunPaused{
		BaseEvent:  events.NewBaseEvent(events.RunPausedEvent),
		RunID:      run.ID,
		WorkflowID: run.WorkflowID,
		ResumeAt:   resumeAt,
	})

	r.logger.InfoContext(ctx, "Run suspended", "run_id", run.ID, "resume_at", resumeAt)

	return nil
}

func (r *Runner) complete(ctx context.Context, run *models.WorkflowRun) error {
	completedAt := r.now()
	run.Status = models.RunStatusCompleted
	run.ResumeAt = nil
	run.CompletedAt = &completedAt

	err := r.persistence.Runs().Save(ctx, run)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}

	r.publish(ctx, run.WorkflowID, events.RunCompleted{
		BaseEvent:  events.NewBaseEvent(events.RunCompletedEvent),
		RunID:      run.ID,
		WorkflowID: run.WorkflowID,
		Duration:   completedAt.Sub(run.StartedAt),
	})

	r.logger.InfoContext(ctx, "Run completed", "run_id", run.ID, "workflow_id", run.WorkflowID)

	return nil
}

// fail marks the run failed. The step error is recorded on the run, not
// returned: a failed run is a valid terminal outcome, not an infra error.
func (r *Runner) fail(ctx context.Context, run *models.WorkflowRun, stepErr error) error {
	completedAt := r.now()
	run.Status = models.RunStatusFailed
	run.ResumeAt = nil
	run.CompletedAt = &completedAt
	run.ErrorMessage = stepErr.Error()

	err := r.persistence.Runs().Save(ctx, run)
	if err != nil {
		return fmt.Errorf("failed to persist run failure: %w", err)
	}

	r.publish(ctx, run.WorkflowID, events.RunFailed{
		BaseEvent:  events.NewBaseEvent(events.RunFailedEvent),
		RunID:      run.ID,
		WorkflowID: run.WorkflowID,
		Error:      stepErr.Error(),
	})

	r.logger.WarnContext(ctx, "Run failed", "run_id", run.ID, "workflow_id", run.WorkflowID, "error", stepErr)

	return nil
}

// executeAction builds and runs one action step, retrying dependency errors
// with a fixed pause. Validation and not-found errors fail immediately.
func (r *Runner) executeAction(ctx context.Context, run *models.WorkflowRun, step *models.Step) (map[string]any, error) {
	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "runner.action",
		append(otelhelper.RunAttrs(run.ID, run.WorkflowID),
			attribute.String(otelhelper.StepIDKey, step.ID),
			attribute.String(otelhelper.ActionTypeKey, string(step.Action.Type)))...)
	defer span.End()

	action, err := r.registry.Create(step.Action.Type, step.Action.Config)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	runContext := &models.RunContext{
		WorkflowID: run.WorkflowID,
		RunID:      run.ID,
		EntityType: run.EntityType,
		EntityID:   run.EntityID,
		Context:    run.Context,
	}

	var lastErr error

	for attempt := range actionMaxAttempts {
		if attempt > 0 {
			r.logger.WarnContext(ctx, "Retrying action after dependency error",
				"run_id", run.ID, "action_type", step.Action.Type, "attempt", attempt+1, "error", lastErr)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.retryDelay):
			}
		}

		output, err := action.Execute(ctx, runContext, r.logger)
		if err == nil {
			return output, nil
		}

		lastErr = err

		if !actions.IsRetryable(err) {
			break
		}
	}

	otelhelper.SetError(span, lastErr)

	return nil, lastErr
}

func (r *Runner) publish(ctx context.Context, key string, event eventbus.Event) {
	if r.publisher == nil {
		return
	}

	err := r.publisher.Publish(ctx, key, event)
	if err != nil {
		r.logger.WarnContext(ctx, "Failed to publish run event", "event_type", event.GetType(), "error", err)
	}
}

func delayDuration(delay *models.DelayConfig) time.Duration {
	switch delay.Unit {
	case models.DelayUnitMinutes:
		return time.Duration(delay.Duration) * time.Minute
	case models.DelayUnitHours:
		return time.Duration(delay.Duration) * time.Hour
	default:
		return time.Duration(delay.Duration) * 24 * time.Hour
	}
}
