package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flowpilot-io/flowpilot/pkg/models"
	"github.com/flowpilot-io/flowpilot/pkg/persistence"
)

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

const workflowColumns = `
	id
  , name
  , entity_type
  , trigger_type
  , trigger_config
  , is_active
  , created_at
  , updated_at
`

// All returns all workflows.
func (r *WorkflowRepository) All(ctx context.Context) ([]*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows ORDER BY created_at DESC`

	return r.queryWorkflows(ctx, query)
}

// ActiveByTrigger returns active workflows matching one entity/trigger pair.
func (r *WorkflowRepository) ActiveByTrigger(ctx context.Context, entityType models.EntityType, trigger models.TriggerType) ([]*models.Workflow, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM workflows
		WHERE is_active AND entity_type = $1 AND trigger_type = $2
		ORDER BY created_at ASC
	`

	return r.queryWorkflows(ctx, query, string(entityType), string(trigger))
}

// ActiveTimeBased returns active cron-triggered workflows.
func (r *WorkflowRepository) ActiveTimeBased(ctx context.Context) ([]*models.Workflow, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM workflows
		WHERE is_active AND trigger_type = $1
		ORDER BY created_at ASC
	`

	return r.queryWorkflows(ctx, query, string(models.TriggerTypeTimeBased))
}

// ByID returns a workflow by its ID.
func (r *WorkflowRepository) ByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id = $1`

	row := r.db.QueryRowContext(ctx, query, id)

	workflow, err := scanWorkflow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrWorkflowNotFound
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	err = r.loadSteps(ctx, workflow)
	if err != nil {
		return nil, err
	}

	return workflow, nil
}

// Save upserts a workflow and replaces its step list wholesale.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workflow ID: %w", err)
		}

		workflow.ID = id.String()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	triggerConfigJSON, err := json.Marshal(workflow.TriggerConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger config: %w", err)
	}

	workflowQuery := `
		INSERT INTO workflows (id, name, entity_type, trigger_type, trigger_config, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			entity_type = EXCLUDED.entity_type,
			trigger_type = EXCLUDED.trigger_type,
			trigger_config = EXCLUDED.trigger_config,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at
	`

	_, err = tx.ExecContext(ctx, workflowQuery,
		workflow.ID,
		workflow.Name,
		string(workflow.EntityType),
		string(workflow.TriggerType),
		triggerConfigJSON,
		workflow.IsActive,
		workflow.CreatedAt,
		workflow.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}

	// Steps are replaced wholesale on update.
	_, err = tx.ExecContext(ctx, "DELETE FROM workflow_steps WHERE workflow_id = $1", workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to delete existing steps: %w", err)
	}

	for _, step := range workflow.Steps {
		if step.ID == "" {
			step.ID = uuid.NewString()
		}

		configJSON, marshalErr := marshalStepConfig(step)
		if marshalErr != nil {
			err = marshalErr

			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflow_steps (workflow_id, id, position, kind, config)
			VALUES ($1, $2, $3, $4, $5)
		`, workflow.ID, step.ID, step.Position, string(step.Kind), configJSON)
		if err != nil {
			return fmt.Errorf("failed to save step %d: %w", step.Position, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit workflow save: %w", err)
	}

	return nil
}

// Delete removes a workflow; steps and runs cascade.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM workflows WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}

	if affected == 0 {
		return persistence.ErrWorkflowNotFound
	}

	return nil
}

func (r *WorkflowRepository) queryWorkflows(ctx context.Context, query string, args ...any) ([]*models.Workflow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	for _, workflow := range workflows {
		err = r.loadSteps(ctx, workflow)
		if err != nil {
			return nil, err
		}
	}

	return workflows, nil
}

func (r *WorkflowRepository) loadSteps(ctx context.Context, workflow *models.Workflow) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, position, kind, config
		FROM workflow_steps
		WHERE workflow_id = $1
		ORDER BY position ASC
	`, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query steps: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflow.Steps = make([]*models.Step, 0)

	for rows.Next() {
		var (
			step       models.Step
			kind       string
			configJSON []byte
		)

		err = rows.Scan(&step.ID, &step.Position, &kind, &configJSON)
		if err != nil {
			return fmt.Errorf("failed to scan step: %w", err)
		}

		step.Kind = models.StepKind(kind)

		err = unmarshalStepConfig(&step, configJSON)
		if err != nil {
			return err
		}

		workflow.Steps = append(workflow.Steps, &step)
	}

	err = rows.Err()
	if err != nil {
		return fmt.Errorf("error iterating steps: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var (
		workflow          models.Workflow
		entityType        string
		triggerType       string
		triggerConfigJSON []byte
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.Name,
		&entityType,
		&triggerType,
		&triggerConfigJSON,
		&workflow.IsActive,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	workflow.EntityType = models.EntityType(entityType)
	workflow.TriggerType = models.TriggerType(triggerType)

	if len(triggerConfigJSON) > 0 {
		err = json.Unmarshal(triggerConfigJSON, &workflow.TriggerConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal trigger config: %w", err)
		}
	}

	return &workflow, nil
}

func marshalStepConfig(step *models.Step) ([]byte, error) {
	var config any

	switch step.Kind {
	case models.StepKindCondition:
		config = step.Condition
	case models.StepKindAction:
		config = step.Action
	case models.StepKindDelay:
		config = step.Delay
	default:
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidStepKind, step.Kind)
	}

	data, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal step config: %w", err)
	}

	return data, nil
}

func unmarshalStepConfig(step *models.Step, data []byte) error {
	var target any

	switch step.Kind {
	case models.StepKindCondition:
		step.Condition = &models.ConditionConfig{}
		target = step.Condition
	case models.StepKindAction:
		step.Action = &models.ActionConfig{}
		target = step.Action
	case models.StepKindDelay:
		step.Delay = &models.DelayConfig{}
		target = step.Delay
	default:
		return fmt.Errorf("%w: %q", models.ErrInvalidStepKind, step.Kind)
	}

	err := json.Unmarshal(data, target)
	if err != nil {
		return fmt.Errorf("failed to unmarshal step config: %w", err)
	}

	return nil
}
