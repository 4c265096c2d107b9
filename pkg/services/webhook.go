package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/flowpilot-io/flowpilot/pkg/models"
	"github.com/flowpilot-io/flowpilot/pkg/persistence"
	"github.com/flowpilot-io/flowpilot/pkg/webhook"
)

// ErrWebhookNotFound is returned when a webhook is not found.
var ErrWebhookNotFound = persistence.ErrWebhookNotFound

// Webhook implements webhook subscription management, delivery inspection
// and manual retries.
type Webhook struct {
	persistence persistence.Persistence
	dispatcher  *webhook.Dispatcher
	retries     *webhook.RetryScheduler
	validate    *validator.Validate
}

// NewWebhook creates a new webhook service.
func NewWebhook(persistence persistence.Persistence, dispatcher *webhook.Dispatcher, retries *webhook.RetryScheduler) *Webhook {
	return &Webhook{
		persistence: persistence,
		dispatcher:  dispatcher,
		retries:     retries,
		validate:    validator.New(),
	}
}

// List retrieves all non-deleted webhooks.
func (s *Webhook) List(ctx context.Context) ([]*models.Webhook, error) {
	return s.persistence.Webhooks().All(ctx)
}

// FetchByID retrieves a webhook by its ID.
func (s *Webhook) FetchByID(ctx context.Context, id string) (*models.Webhook, error) {
	return s.persistence.Webhooks().ByID(ctx, id)
}

// Create validates and persists a new webhook subscription.
func (s *Webhook) Create(ctx context.Context, hook *models.Webhook) (*models.Webhook, error) {
	err := s.validateWebhook(hook)
	if err != nil {
		return nil, err
	}

	hook.ID = ""
	hook.DeletedAt = nil

	err = s.persistence.Webhooks().Save(ctx, hook)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook: %w", err)
	}

	return hook, nil
}

// Update replaces a webhook's configuration. A rotated secret applies to
// all future attempts, including retries of older deliveries.
func (s *Webhook) Update(ctx context.Context, id string, hook *models.Webhook) (*models.Webhook, error) {
	existing, err := s.persistence.Webhooks().ByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if existing.DeletedAt != nil {
		return nil, ErrWebhookNotFound
	}

	err = s.validateWebhook(hook)
	if err != nil {
		return nil, err
	}

	hook.ID = existing.ID
	hook.CreatedAt = existing.CreatedAt
	hook.DeletedAt = nil

	err = s.persistence.Webhooks().Save(ctx, hook)
	if err != nil {
		return nil, fmt.Errorf("failed to update webhook: %w", err)
	}

	return hook, nil
}

// Delete soft-deletes a webhook. Its delivery history is kept; pending
// retries are abandoned on the next sweep.
func (s *Webhook) Delete(ctx context.Context, id string) error {
	return s.persistence.Webhooks().SoftDelete(ctx, id)
}

// Deliveries lists the delivery history of a webhook, newest first.
func (s *Webhook) Deliveries(ctx context.Context, webhookID string) ([]*models.WebhookDelivery, error) {
	_, err := s.persistence.Webhooks().ByID(ctx, webhookID)
	if err != nil {
		return nil, err
	}

	return s.persistence.Deliveries().ByWebhook(ctx, webhookID)
}

// Delivery retrieves a single delivery.
func (s *Webhook) Delivery(ctx context.Context, id string) (*models.WebhookDelivery, error) {
	return s.persistence.Deliveries().ByID(ctx, id)
}

// RetryDelivery re-attempts a failed delivery immediately, ignoring its
// scheduled retry time.
func (s *Webhook) RetryDelivery(ctx context.Context, id string) (*models.WebhookDelivery, error) {
	return s.retries.RetryDelivery(ctx, id)
}

// SendTest dispatches a synthetic event to the webhook so an operator can
// verify the endpoint and signature handling.
func (s *Webhook) SendTest(ctx context.Context, id string) (*models.WebhookDelivery, error) {
	hook, err := s.persistence.Webhooks().ByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !hook.Dispatchable() {
		return nil, ErrWebhookNotFound
	}

	payload := map[string]any{
		"test":       true,
		"webhook_id": hook.ID,
		"sent_at":    time.Now().UTC().Format(time.RFC3339),
	}

	return s.dispatcher.Dispatch(ctx, hook, "webhook.test", payload)
}

func (s *Webhook) validateWebhook(hook *models.Webhook) error {
	if hook == nil {
		return ErrWebhookNil
	}

	err := s.validate.Struct(hook)
	if err != nil {
		return NewValidationError("validateWebhook", err.Error())
	}

	return nil
}
