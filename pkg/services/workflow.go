package services

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/flowpilot-io/flowpilot/pkg/models"
	"github.com/flowpilot-io/flowpilot/pkg/persistence"
	"github.com/flowpilot-io/flowpilot/pkg/runner"
)

// ErrWorkflowNotFound is returned when a workflow is not found.
var ErrWorkflowNotFound = persistence.ErrWorkflowNotFound

// Workflow implements workflow management, manual execution and dry runs.
type Workflow struct {
	persistence persistence.Persistence
	runner      *runner.Runner
	simulator   *runner.Simulator
	validate    *validator.Validate
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(persistence persistence.Persistence, wfRunner *runner.Runner, simulator *runner.Simulator) *Workflow {
	return &Workflow{
		persistence: persistence,
		runner:      wfRunner,
		simulator:   simulator,
		validate:    validator.New(),
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// List retrieves all workflows.
func (w *Workflow) List(ctx context.Context) ([]*models.Workflow, error) {
	return w.persistence.Workflows().All(ctx)
}

// FetchByID retrieves a workflow by its ID.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	return w.persistence.Workflows().ByID(ctx, id)
}

// Create validates and persists a new workflow definition.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	err := w.validateWorkflow(workflow)
	if err != nil {
		return nil, err
	}

	workflow.ID = ""

	err = w.persistence.Workflows().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	return workflow, nil
}

// Update replaces a workflow definition. The step list is replaced
// wholesale; runs already in flight keep the snapshot they started with.
func (w *Workflow) Update(ctx context.Context, id string, workflow *models.Workflow) (*models.Workflow, error) {
	existing, err := w.persistence.Workflows().ByID(ctx, id)
	if err != nil {
		return nil, err
	}

	err = w.validateWorkflow(workflow)
	if err != nil {
		return nil, err
	}

	workflow.ID = existing.ID
	workflow.CreatedAt = existing.CreatedAt

	err = w.persistence.Workflows().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	return workflow, nil
}

// Delete removes a workflow and its run history.
func (w *Workflow) Delete(ctx context.Context, id string) error {
	return w.persistence.Workflows().Delete(ctx, id)
}

// Execute manually triggers a workflow against one entity, regardless of
// the workflow's configured trigger.
func (w *Workflow) Execute(ctx context.Context, id, entityID string, snapshot map[string]any) (*models.WorkflowRun, error) {
	workflow, err := w.persistence.Workflows().ByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if entityID == "" {
		return nil, NewValidationError("Execute", "entity_id is required")
	}

	return w.runner.Trigger(ctx, workflow, models.EntityEvent{
		EntityType: workflow.EntityType,
		EntityID:   entityID,
		Event:      models.TriggerTypeManual,
		Snapshot:   snapshot,
	})
}

// Test dry-runs a workflow against a sample entity without side effects.
func (w *Workflow) Test(ctx context.Context, id string, sample map[string]any) (*models.TestReport, error) {
	workflow, err := w.persistence.Workflows().ByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return w.simulator.Test(ctx, workflow, sample)
}

// Runs lists the run history of a workflow, newest first.
func (w *Workflow) Runs(ctx context.Context, workflowID string) ([]*models.WorkflowRun, error) {
	_, err := w.persistence.Workflows().ByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	return w.persistence.Runs().ByWorkflow(ctx, workflowID)
}

// Run retrieves a single run with its full trace.
func (w *Workflow) Run(ctx context.Context, id string) (*models.WorkflowRun, error) {
	return w.persistence.Runs().ByID(ctx, id)
}

func (w *Workflow) validateWorkflow(workflow *models.Workflow) error {
	if workflow == nil {
		return ErrWorkflowNil
	}

	err := w.validate.Struct(workflow)
	if err != nil {
		return NewValidationError("validateWorkflow", err.Error())
	}

	if len(workflow.Steps) == 0 {
		return ErrStepsRequired
	}

	err = workflow.Validate()
	if err != nil {
		return NewValidationError("validateWorkflow", err.Error())
	}

	return nil
}
