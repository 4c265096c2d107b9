package models

import (
	"encoding/json"
	"slices"
	"time"
)

// Webhook is an external HTTP endpoint subscribed to signed event
// notifications.
type Webhook struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"   validate:"required,min=3"`
	URL       string     `json:"url"    validate:"required,url"`
	Secret    string     `json:"secret" validate:"required"`
	Events    []string   `json:"events" validate:"required,min=1"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Dispatchable reports whether deliveries may be attempted against this
// webhook.
func (w *Webhook) Dispatchable() bool {
	return w != nil && w.IsActive && w.DeletedAt == nil
}

// SubscribedTo reports whether the webhook wants the given event.
func (w *Webhook) SubscribedTo(event string) bool {
	return slices.Contains(w.Events, event)
}

// DeliveryStatus is the lifecycle state of a webhook delivery.
type DeliveryStatus string

const (
	DeliveryStatusPending DeliveryStatus = "pending"
	DeliveryStatusSuccess DeliveryStatus = "success"
	DeliveryStatusFailed  DeliveryStatus = "failed"
)

// MaxDeliveryAttempts is the hard cap on attempts per delivery.
const MaxDeliveryAttempts = 5

// ResponseBodyLimit bounds how much of a receiver's response is recorded.
const ResponseBodyLimit = 1024

// WebhookDelivery is one attempted (and retried) transmission of an event to
// a webhook endpoint. The row is persisted before the first attempt so a
// crash mid-request leaves a retryable record.
type WebhookDelivery struct {
	ID           string          `json:"id"`
	WebhookID    string          `json:"webhook_id"`
	Event        string          `json:"event"`
	Payload      json.RawMessage `json:"payload"`
	Status       DeliveryStatus  `json:"status"`
	StatusCode   *int            `json:"status_code,omitempty"`
	ResponseBody *string         `json:"response_body,omitempty"`
	Attempts     int             `json:"attempts"`
	NextRetryAt  *time.Time      `json:"next_retry_at,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Abandoned reports whether the delivery will never be retried again.
func (d *WebhookDelivery) Abandoned() bool {
	return d.Status == DeliveryStatusFailed && d.NextRetryAt == nil
}
