package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/flowpilot-io/flowpilot/pkg/models"
	"github.com/flowpilot-io/flowpilot/pkg/otelhelper"
	"github.com/flowpilot-io/flowpilot/pkg/persistence"
)

const (
	SignatureHeader = "X-Webhook-Signature"
	EventHeader     = "X-Webhook-Event"
	RetryHeader     = "X-Webhook-Retry"

	// DispatchTimeout bounds one delivery attempt end to end.
	DispatchTimeout = 10 * time.Second
)

// Dispatcher sends signed event payloads to subscribed webhooks and records
// every delivery. The delivery row is persisted before the first attempt so
// a crash mid-request leaves a retryable record instead of a lost event.
type Dispatcher struct {
	persistence persistence.Persistence
	client      *http.Client
	tracer      trace.Tracer
	logger      *slog.Logger
	now         func() time.Time
}

type DispatcherOption func(*Dispatcher)

// WithHTTPClient injects the HTTP client, mostly for tests.
func WithHTTPClient(client *http.Client) DispatcherOption {
	return func(d *Dispatcher) {
		d.client = client
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		d.now = now
	}
}

func NewDispatcher(persistence persistence.Persistence, tracer trace.Tracer, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("webhook")
	}

	d := &Dispatcher{
		persistence: persistence,
		client:      &http.Client{Timeout: DispatchTimeout},
		tracer:      tracer,
		logger:      logger.With("module", "webhook-dispatcher"),
		now:         func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// DispatchEvent fans one event out to every subscribed, dispatchable
// webhook. One webhook failing never blocks the others.
func (d *Dispatcher) DispatchEvent(ctx context.Context, event string, payload any) error {
	webhooks, err := d.persistence.Webhooks().SubscribedTo(ctx, event)
	if err != nil {
		return fmt.Errorf("failed to list subscribed webhooks: %w", err)
	}

	for _, webhook := range webhooks {
		_, err := d.Dispatch(ctx, webhook, event, payload)
		if err != nil {
			d.logger.ErrorContext(ctx, "Failed to dispatch event",
				"webhook_id", webhook.ID, "event", event, "error", err)
		}
	}

	return nil
}

// Dispatch creates a delivery for the webhook and performs the first
// attempt. Deleted or inactive webhooks are skipped without recording
// anything.
func (d *Dispatcher) Dispatch(ctx context.Context, webhook *models.Webhook, event string, payload any) (*models.WebhookDelivery, error) {
	if !webhook.Dispatchable() {
		return nil, nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate delivery ID: %w", err)
	}

	// The lease makes the pending row re-selectable by the retry sweep if
	// the process dies mid-attempt.
	lease := d.now().Add(persistence.ClaimLease)

	delivery := &models.WebhookDelivery{
		ID:          id.String(),
		WebhookID:   webhook.ID,
		Event:       event,
		Payload:     body,
		Status:      models.DeliveryStatusPending,
		Attempts:    0,
		NextRetryAt: &lease,
	}

	err = d.persistence.Deliveries().Save(ctx, delivery)
	if err != nil {
		return nil, fmt.Errorf("failed to persist delivery: %w", err)
	}

	err = d.Attempt(ctx, webhook, delivery)
	if err != nil {
		return nil, err
	}

	return delivery, nil
}

// Attempt performs one HTTP attempt against the webhook and records the
// outcome on the delivery. The payload is signed with the webhook's current
// secret on every attempt, so secret rotation applies to retries too.
func (d *Dispatcher) Attempt(ctx context.Context, webhook *models.Webhook, delivery *models.WebhookDelivery) error {
	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "webhook.attempt",
		otelhelper.DeliveryAttrs(delivery.ID, webhook.ID)...)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook.URL, bytes.NewReader(delivery.Payload))
	if err != nil {
		return d.recordFailure(ctx, delivery, nil, "", fmt.Sprintf("failed to build request: %v", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(delivery.Payload, webhook.Secret))
	req.Header.Set(EventHeader, delivery.Event)
	// Prior attempt count: "0" on the first delivery.
	req.Header.Set(RetryHeader, strconv.Itoa(delivery.Attempts))

	resp, err := d.client.Do(req)
	if err != nil {
		otelhelper.SetError(span, err)

		return d.recordFailure(ctx, delivery, nil, "", err.Error())
	}

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			d.logger.WarnContext(ctx, "Failed to close response body", "error", err)
		}
	}()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, models.ResponseBodyLimit))
	responseBody := string(body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return d.recordSuccess(ctx, delivery, resp.StatusCode, responseBody)
	}

	return d.recordFailure(ctx, delivery, &resp.StatusCode, responseBody,
		fmt.Sprintf("receiver returned %d", resp.StatusCode))
}

func (d *Dispatcher) recordSuccess(ctx context.Context, delivery *models.WebhookDelivery, statusCode int, responseBody string) error {
	delivery.Status = models.DeliveryStatusSuccess
	delivery.StatusCode = &statusCode
	delivery.ResponseBody = &responseBody
	delivery.NextRetryAt = nil
	delivery.ErrorMessage = nil

	err := d.persistence.Deliveries().Save(ctx, delivery)
	if err != nil {
		return fmt.Errorf("failed to record delivery success: %w", err)
	}

	d.logger.InfoContext(ctx, "Delivery succeeded",
		"delivery_id", delivery.ID, "webhook_id", delivery.WebhookID, "status_code", statusCode)

	return nil
}

// recordFailure bumps the attempt counter and schedules the next retry with
// exponential backoff, abandoning the delivery once the cap is reached.
func (d *Dispatcher) recordFailure(ctx context.Context, delivery *models.WebhookDelivery, statusCode *int, responseBody, errMsg string) error {
	delivery.Status = models.DeliveryStatusFailed
	delivery.StatusCode = statusCode
	delivery.ErrorMessage = &errMsg
	delivery.Attempts++

	if responseBody != "" {
		delivery.ResponseBody = &responseBody
	}

	if delivery.Attempts >= models.MaxDeliveryAttempts {
		delivery.NextRetryAt = nil
	} else {
		next := d.now().Add(BackoffDelay(delivery.Attempts))
		delivery.NextRetryAt = &next
	}

	err := d.persistence.Deliveries().Save(ctx, delivery)
	if err != nil {
		return fmt.Errorf("failed to record delivery failure: %w", err)
	}

	d.logger.WarnContext(ctx, "Delivery failed",
		"delivery_id", delivery.ID, "webhook_id", delivery.WebhookID,
		"attempts", delivery.Attempts, "abandoned", delivery.NextRetryAt == nil, "error", errMsg)

	return nil
}

// BackoffDelay is the pause before retry number attempts+1: 2^attempts
// minutes.
func BackoffDelay(attempts int) time.Duration {
	return time.Duration(1<<attempts) * time.Minute
}
