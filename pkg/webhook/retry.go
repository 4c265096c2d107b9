package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowpilot-io/flowpilot/pkg/models"
	"github.com/flowpilot-io/flowpilot/pkg/persistence"
)

// RetryBatchSize bounds how many failed deliveries one sweep claims.
const RetryBatchSize = 50

const abandonedReason = "webhook deleted or inactive"

// RetryScheduler sweeps failed deliveries whose retry time has passed and
// re-attempts them through the dispatcher. Claiming is atomic, so running
// several sweepers never double-delivers.
type RetryScheduler struct {
	persistence persistence.Persistence
	dispatcher  *Dispatcher
	logger      *slog.Logger
	batch       int
}

func NewRetryScheduler(persistence persistence.Persistence, dispatcher *Dispatcher, logger *slog.Logger) *RetryScheduler {
	return &RetryScheduler{
		persistence: persistence,
		dispatcher:  dispatcher,
		logger:      logger.With("module", "webhook-retry"),
		batch:       RetryBatchSize,
	}
}

// Sweep claims one batch of due deliveries and retries them. One delivery
// failing never stops the rest of the batch.
func (s *RetryScheduler) Sweep(ctx context.Context) error {
	deliveries, err := s.persistence.Deliveries().ClaimDue(ctx, time.Now().UTC(), s.batch)
	if err != nil {
		return fmt.Errorf("failed to claim due deliveries: %w", err)
	}

	if len(deliveries) == 0 {
		return nil
	}

	s.logger.InfoContext(ctx, "Retrying failed deliveries", "count", len(deliveries))

	for _, delivery := range deliveries {
		err := s.retry(ctx, delivery)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to retry delivery", "delivery_id", delivery.ID, "error", err)
		}
	}

	return nil
}

// RetryDelivery claims a single delivery for an operator-requested retry
// and attempts it immediately, ignoring its scheduled retry time.
func (s *RetryScheduler) RetryDelivery(ctx context.Context, id string) (*models.WebhookDelivery, error) {
	delivery, err := s.persistence.Deliveries().Claim(ctx, id)
	if err != nil {
		return nil, err
	}

	err = s.retry(ctx, delivery)
	if err != nil {
		return nil, err
	}

	return delivery, nil
}

// retry re-attempts one claimed delivery. If the webhook has been deleted
// or deactivated since, the delivery is abandoned without burning an
// attempt.
func (s *RetryScheduler) retry(ctx context.Context, delivery *models.WebhookDelivery) error {
	webhook, err := s.persistence.Webhooks().ByID(ctx, delivery.WebhookID)
	if err != nil {
		if persistence.IsNotFound(err) {
			return s.abandon(ctx, delivery)
		}

		return fmt.Errorf("failed to load webhook %s: %w", delivery.WebhookID, err)
	}

	if !webhook.Dispatchable() {
		return s.abandon(ctx, delivery)
	}

	// Attempt re-signs with the webhook's current secret, so a rotated
	// secret applies to retries of older deliveries.
	return s.dispatcher.Attempt(ctx, webhook, delivery)
}

func (s *RetryScheduler) abandon(ctx context.Context, delivery *models.WebhookDelivery) error {
	reason := abandonedReason

	delivery.Status = models.DeliveryStatusFailed
	delivery.NextRetryAt = nil
	delivery.ErrorMessage = &reason

	err := s.persistence.Deliveries().Save(ctx, delivery)
	if err != nil {
		return fmt.Errorf("failed to abandon delivery: %w", err)
	}

	s.logger.InfoContext(ctx, "Delivery abandoned",
		"delivery_id", delivery.ID, "webhook_id", delivery.WebhookID, "reason", reason)

	return nil
}
