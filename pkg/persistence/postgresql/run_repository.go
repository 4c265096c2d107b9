package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowpilot-io/flowpilot/pkg/models"
	"github.com/flowpilot-io/flowpilot/pkg/persistence"
)

// RunRepository handles workflow run database operations.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewRunRepository(db *sql.DB, logger *slog.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

const runColumns = `
	id
  , workflow_id
  , entity_type
  , entity_id
  , status
  , cursor_position
  , steps
  , context
  , trace
  , error_message
  , started_at
  , resume_at
  , completed_at
`

func (r *RunRepository) ByID(ctx context.Context, id string) (*models.WorkflowRun, error) {
	query := `SELECT ` + runColumns + ` FROM workflow_runs WHERE id = $1`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrRunNotFound
		}

		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	return run, nil
}

func (r *RunRepository) ByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM workflow_runs
		WHERE workflow_id = $1
		ORDER BY started_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	runs := make([]*models.WorkflowRun, 0)

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		runs = append(runs, run)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// Save upserts a run. Terminal runs are immutable: an update against a
// completed or failed row affects nothing and reports ErrRunTerminal.
func (r *RunRepository) Save(ctx context.Context, run *models.WorkflowRun) error {
	stepsJSON, err := json.Marshal(run.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal run steps: %w", err)
	}

	contextJSON, err := json.Marshal(run.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal run context: %w", err)
	}

	traceJSON, err := json.Marshal(run.Trace)
	if err != nil {
		return fmt.Errorf("failed to marshal run trace: %w", err)
	}

	query := `
		INSERT INTO workflow_runs (id, workflow_id, entity_type, entity_id, status, cursor_position,
			steps, context, trace, error_message, started_at, resume_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			cursor_position = EXCLUDED.cursor_position,
			context = EXCLUDED.context,
			trace = EXCLUDED.trace,
			error_message = EXCLUDED.error_message,
			resume_at = EXCLUDED.resume_at,
			completed_at = EXCLUDED.completed_at
		WHERE workflow_runs.status NOT IN ('completed', 'failed')
	`

	result, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.WorkflowID,
		string(run.EntityType),
		run.EntityID,
		string(run.Status),
		run.Cursor,
		stepsJSON,
		contextJSON,
		traceJSON,
		nullString(run.ErrorMessage),
		run.StartedAt,
		run.ResumeAt,
		run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check run save result: %w", err)
	}

	if affected == 0 {
		return persistence.ErrRunTerminal
	}

	return nil
}

// ClaimDue atomically claims waiting runs whose resume time has passed.
// SKIP LOCKED keeps two concurrent sweeps from claiming the same run.
// Claimed runs keep a resume_at lease instead of NULL: if the claimant dies
// before the run completes or suspends again, the lease expires and the run
// is picked up by a later sweep.
func (r *RunRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.WorkflowRun, error) {
	query := `
		UPDATE workflow_runs
		SET status = 'running', resume_at = $3
		WHERE id IN (
			SELECT id FROM workflow_runs
			WHERE status IN ('waiting', 'running') AND resume_at IS NOT NULL AND resume_at <= $1
			ORDER BY resume_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + runColumns

	rows, err := r.db.QueryContext(ctx, query, now, limit, now.Add(persistence.ClaimLease))
	if err != nil {
		return nil, fmt.Errorf("failed to claim due runs: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	claimed := make([]*models.WorkflowRun, 0)

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claimed run: %w", err)
		}

		claimed = append(claimed, run)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating claimed runs: %w", err)
	}

	return claimed, nil
}

func scanRun(row rowScanner) (*models.WorkflowRun, error) {
	var (
		run          models.WorkflowRun
		entityType   string
		status       string
		stepsJSON    []byte
		contextJSON  []byte
		traceJSON    []byte
		errorMessage sql.NullString
	)

	err := row.Scan(
		&run.ID,
		&run.WorkflowID,
		&entityType,
		&run.EntityID,
		&status,
		&run.Cursor,
		&stepsJSON,
		&contextJSON,
		&traceJSON,
		&errorMessage,
		&run.StartedAt,
		&run.ResumeAt,
		&run.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	run.EntityType = models.EntityType(entityType)
	run.Status = models.RunStatus(status)
	run.ErrorMessage = errorMessage.String

	err = json.Unmarshal(stepsJSON, &run.Steps)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal run steps: %w", err)
	}

	err = json.Unmarshal(contextJSON, &run.Context)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal run context: %w", err)
	}

	err = json.Unmarshal(traceJSON, &run.Trace)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal run trace: %w", err)
	}

	return &run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
