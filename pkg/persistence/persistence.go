// Package persistence provides the data storage abstraction for workflows,
// runs, webhooks and deliveries.
package persistence

import (
	"context"
	"time"

	"github.com/flowpilot-io/flowpilot/pkg/models"
)

// ClaimLease is how long a claim holds a record before it becomes due
// again. A process that dies between claiming and recording the outcome
// leaves the record re-selectable after the lease instead of stranded.
const ClaimLease = 10 * time.Minute

type Persistence interface {
	Workflows() WorkflowRepository
	Runs() RunRepository
	Webhooks() WebhookRepository
	Deliveries() DeliveryRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

type WorkflowRepository interface {
	All(ctx context.Context) ([]*models.Workflow, error)
	ByID(ctx context.Context, id string) (*models.Workflow, error)

	// ActiveByTrigger returns active workflows for one entity type and
	// trigger type, for fan-out on entity events.
	ActiveByTrigger(ctx context.Context, entityType models.EntityType, trigger models.TriggerType) ([]*models.Workflow, error)

	// ActiveTimeBased returns active workflows with a cron trigger.
	ActiveTimeBased(ctx context.Context) ([]*models.Workflow, error)

	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error
}

type RunRepository interface {
	ByID(ctx context.Context, id string) (*models.WorkflowRun, error)
	ByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowRun, error)
	Save(ctx context.Context, run *models.WorkflowRun) error

	// ClaimDue atomically moves waiting runs whose resume_at has passed
	// back to running and returns them. Two concurrent sweeps never claim
	// the same run.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.WorkflowRun, error)
}

type WebhookRepository interface {
	All(ctx context.Context) ([]*models.Webhook, error)
	ByID(ctx context.Context, id string) (*models.Webhook, error)

	// SubscribedTo returns active, non-deleted webhooks subscribed to the
	// given event name.
	SubscribedTo(ctx context.Context, event string) ([]*models.Webhook, error)

	Save(ctx context.Context, webhook *models.Webhook) error
	SoftDelete(ctx context.Context, id string) error
}

type DeliveryRepository interface {
	ByID(ctx context.Context, id string) (*models.WebhookDelivery, error)
	ByWebhook(ctx context.Context, webhookID string) ([]*models.WebhookDelivery, error)
	Save(ctx context.Context, delivery *models.WebhookDelivery) error

	// ClaimDue atomically claims failed deliveries that are due for retry
	// (next_retry_at <= now, attempts below the cap), oldest first, bounded
	// by limit. Claimed deliveries move to pending so at most one attempt
	// is ever in flight per delivery.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.WebhookDelivery, error)

	// Claim claims a single failed delivery for a manual retry. Returns
	// ErrDeliveryNotClaimable if the delivery is not in a retryable state.
	Claim(ctx context.Context, id string) (*models.WebhookDelivery, error)
}
