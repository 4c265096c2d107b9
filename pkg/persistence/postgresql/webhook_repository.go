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

// WebhookRepository handles webhook subscription database operations.
type WebhookRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewWebhookRepository(db *sql.DB, logger *slog.Logger) *WebhookRepository {
	return &WebhookRepository{db: db, logger: logger}
}

const webhookColumns = `
	id
  , name
  , url
  , secret
  , events
  , is_active
  , created_at
  , updated_at
  , deleted_at
`

func (r *WebhookRepository) All(ctx context.Context) ([]*models.Webhook, error) {
	query := `
		SELECT ` + webhookColumns + `
		FROM webhooks
		WHERE deleted_at IS NULL
		ORDER BY created_at ASC
	`

	return r.queryWebhooks(ctx, query)
}

func (r *WebhookRepository) ByID(ctx context.Context, id string) (*models.Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks WHERE id = $1`

	webhook, err := scanWebhook(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrWebhookNotFound
		}

		return nil, fmt.Errorf("failed to scan webhook: %w", err)
	}

	return webhook, nil
}

// SubscribedTo returns dispatchable webhooks subscribed to the event name.
func (r *WebhookRepository) SubscribedTo(ctx context.Context, event string) ([]*models.Webhook, error) {
	query := `
		SELECT ` + webhookColumns + `
		FROM webhooks
		WHERE deleted_at IS NULL AND is_active AND events @> to_jsonb(ARRAY[$1]::text[])
		ORDER BY created_at ASC
	`

	return r.queryWebhooks(ctx, query, event)
}

func (r *WebhookRepository) Save(ctx context.Context, webhook *models.Webhook) error {
	now := time.Now().UTC()

	if webhook.CreatedAt.IsZero() {
		webhook.CreatedAt = now
	}

	webhook.UpdatedAt = now

	if webhook.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate webhook ID: %w", err)
		}

		webhook.ID = id.String()
	}

	eventsJSON, err := json.Marshal(webhook.Events)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook events: %w", err)
	}

	query := `
		INSERT INTO webhooks (id, name, url, secret, events, is_active, created_at, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			url = EXCLUDED.url,
			secret = EXCLUDED.secret,
			events = EXCLUDED.events,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at
	`

	_, err = r.db.ExecContext(ctx, query,
		webhook.ID,
		webhook.Name,
		webhook.URL,
		webhook.Secret,
		eventsJSON,
		webhook.IsActive,
		webhook.CreatedAt,
		webhook.UpdatedAt,
		webhook.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save webhook: %w", err)
	}

	return nil
}

// SoftDelete marks a webhook deleted; its delivery history is kept.
func (r *WebhookRepository) SoftDelete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE webhooks
		SET deleted_at = NOW(), is_active = false, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("failed to soft delete webhook: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}

	if affected == 0 {
		return persistence.ErrWebhookNotFound
	}

	return nil
}

func (r *WebhookRepository) queryWebhooks(ctx context.Context, query string, args ...any) ([]*models.Webhook, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query webhooks: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	webhooks := make([]*models.Webhook, 0)

	for rows.Next() {
		webhook, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook: %w", err)
		}

		webhooks = append(webhooks, webhook)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating webhooks: %w", err)
	}

	return webhooks, nil
}

func scanWebhook(row rowScanner) (*models.Webhook, error) {
	var (
		webhook    models.Webhook
		eventsJSON []byte
	)

	err := row.Scan(
		&webhook.ID,
		&webhook.Name,
		&webhook.URL,
		&webhook.Secret,
		&eventsJSON,
		&webhook.IsActive,
		&webhook.CreatedAt,
		&webhook.UpdatedAt,
		&webhook.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(eventsJSON, &webhook.Events)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal webhook events: %w", err)
	}

	return &webhook, nil
}
