package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowpilot-io/flowpilot/pkg/models"
	"github.com/flowpilot-io/flowpilot/pkg/persistence"
)

// DeliveryRepository handles webhook delivery database operations.
type DeliveryRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewDeliveryRepository(db *sql.DB, logger *slog.Logger) *DeliveryRepository {
	return &DeliveryRepository{db: db, logger: logger}
}

const deliveryColumns = `
	id
  , webhook_id
  , event
  , payload
  , status
  , status_code
  , response_body
  , attempts
  , next_retry_at
  , error_message
  , created_at
  , updated_at
`

func (r *DeliveryRepository) ByID(ctx context.Context, id string) (*models.WebhookDelivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries WHERE id = $1`

	delivery, err := scanDelivery(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrDeliveryNotFound
		}

		return nil, fmt.Errorf("failed to scan delivery: %w", err)
	}

	return delivery, nil
}

func (r *DeliveryRepository) ByWebhook(ctx context.Context, webhookID string) ([]*models.WebhookDelivery, error) {
	query := `
		SELECT ` + deliveryColumns + `
		FROM webhook_deliveries
		WHERE webhook_id = $1
		ORDER BY created_at DESC
	`

	return r.queryDeliveries(ctx, query, webhookID)
}

func (r *DeliveryRepository) Save(ctx context.Context, delivery *models.WebhookDelivery) error {
	now := time.Now().UTC()

	if delivery.CreatedAt.IsZero() {
		delivery.CreatedAt = now
	}

	delivery.UpdatedAt = now

	query := `
		INSERT INTO webhook_deliveries (id, webhook_id, event, payload, status, status_code,
			response_body, attempts, next_retry_at, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			status_code = EXCLUDED.status_code,
			response_body = EXCLUDED.response_body,
			attempts = EXCLUDED.attempts,
			next_retry_at = EXCLUDED.next_retry_at,
			error_message = EXCLUDED.error_message,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		delivery.ID,
		delivery.WebhookID,
		delivery.Event,
		[]byte(delivery.Payload),
		string(delivery.Status),
		delivery.StatusCode,
		delivery.ResponseBody,
		delivery.Attempts,
		delivery.NextRetryAt,
		delivery.ErrorMessage,
		delivery.CreatedAt,
		delivery.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save delivery: %w", err)
	}

	return nil
}

// ClaimDue atomically claims failed, due deliveries for retry. The
// conditional update plus SKIP LOCKED guarantees at most one in-flight
// attempt per delivery across concurrent sweeps. Claiming leases the row by
// pushing next_retry_at out, so pending rows whose claimant died become
// claimable again once the lease expires.
func (r *DeliveryRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.WebhookDelivery, error) {
	query := `
		UPDATE webhook_deliveries
		SET status = 'pending', next_retry_at = $4, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM webhook_deliveries
			WHERE status IN ('failed', 'pending') AND next_retry_at <= $1 AND attempts < $2
			ORDER BY next_retry_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + deliveryColumns

	rows, err := r.db.QueryContext(ctx, query, now, models.MaxDeliveryAttempts, limit, now.Add(persistence.ClaimLease))
	if err != nil {
		return nil, fmt.Errorf("failed to claim due deliveries: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	claimed := make([]*models.WebhookDelivery, 0)

	for rows.Next() {
		delivery, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claimed delivery: %w", err)
		}

		claimed = append(claimed, delivery)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating claimed deliveries: %w", err)
	}

	return claimed, nil
}

// Claim claims one failed delivery for a manual retry.
func (r *DeliveryRepository) Claim(ctx context.Context, id string) (*models.WebhookDelivery, error) {
	query := `
		UPDATE webhook_deliveries
		SET status = 'pending', next_retry_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'failed' AND attempts < $2
		RETURNING ` + deliveryColumns

	lease := time.Now().UTC().Add(persistence.ClaimLease)

	delivery, err := scanDelivery(r.db.QueryRowContext(ctx, query, id, models.MaxDeliveryAttempts, lease))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Distinguish missing from unclaimable.
			_, lookupErr := r.ByID(ctx, id)
			if lookupErr != nil {
				return nil, lookupErr
			}

			return nil, persistence.ErrDeliveryNotClaimable
		}

		return nil, fmt.Errorf("failed to claim delivery: %w", err)
	}

	return delivery, nil
}

func (r *DeliveryRepository) queryDeliveries(ctx context.Context, query string, args ...any) ([]*models.WebhookDelivery, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	deliveries := make([]*models.WebhookDelivery, 0)

	for rows.Next() {
		delivery, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}

		deliveries = append(deliveries, delivery)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating deliveries: %w", err)
	}

	return deliveries, nil
}

func scanDelivery(row rowScanner) (*models.WebhookDelivery, error) {
	var (
		delivery models.WebhookDelivery
		status   string
		payload  []byte
	)

	err := row.Scan(
		&delivery.ID,
		&delivery.WebhookID,
		&delivery.Event,
		&payload,
		&status,
		&delivery.StatusCode,
		&delivery.ResponseBody,
		&delivery.Attempts,
		&delivery.NextRetryAt,
		&delivery.ErrorMessage,
		&delivery.CreatedAt,
		&delivery.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	delivery.Status = models.DeliveryStatus(status)
	delivery.Payload = payload

	return &delivery, nil
}
