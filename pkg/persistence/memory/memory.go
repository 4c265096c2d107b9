// Package memory provides an in-memory persistence implementation for tests
// and single-node development. It honors the same claim semantics as the
// PostgreSQL implementation: claims are check-and-set under one lock, so two
// concurrent sweeps never claim the same record.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowpilot-io/flowpilot/pkg/models"
	"github.com/flowpilot-io/flowpilot/pkg/persistence"
)

type Persistence struct {
	mu         sync.Mutex
	workflows  map[string]*models.Workflow
	runs       map[string]*models.WorkflowRun
	webhooks   map[string]*models.Webhook
	deliveries map[string]*models.WebhookDelivery
}

func NewPersistence() *Persistence {
	return &Persistence{
		workflows:  make(map[string]*models.Workflow),
		runs:       make(map[string]*models.WorkflowRun),
		webhooks:   make(map[string]*models.Webhook),
		deliveries: make(map[string]*models.WebhookDelivery),
	}
}

func (p *Persistence) Workflows() persistence.WorkflowRepository  { return &workflowRepo{p} }
func (p *Persistence) Runs() persistence.RunRepository            { return &runRepo{p} }
func (p *Persistence) Webhooks() persistence.WebhookRepository    { return &webhookRepo{p} }
func (p *Persistence) Deliveries() persistence.DeliveryRepository { return &deliveryRepo{p} }
func (p *Persistence) HealthCheck(_ context.Context) error        { return nil }
func (p *Persistence) Close(_ context.Context) error              { return nil }

// clone round-trips a record through JSON so callers never share memory with
// the store.
func clone[T any](in *T) *T {
	data, err := json.Marshal(in)
	if err != nil {
		panic(fmt.Sprintf("memory store: failed to marshal record: %v", err))
	}

	out := new(T)

	err = json.Unmarshal(data, out)
	if err != nil {
		panic(fmt.Sprintf("memory store: failed to unmarshal record: %v", err))
	}

	return out
}

type workflowRepo struct{ p *Persistence }

func (r *workflowRepo) All(_ context.Context) ([]*models.Workflow, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	workflows := make([]*models.Workflow, 0, len(r.p.workflows))
	for _, workflow := range r.p.workflows {
		workflows = append(workflows, clone(workflow))
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.Before(workflows[j].CreatedAt)
	})

	return workflows, nil
}

func (r *workflowRepo) ByID(_ context.Context, id string) (*models.Workflow, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	workflow, ok := r.p.workflows[id]
	if !ok {
		return nil, persistence.ErrWorkflowNotFound
	}

	return clone(workflow), nil
}

func (r *workflowRepo) ActiveByTrigger(_ context.Context, entityType models.EntityType, trigger models.TriggerType) ([]*models.Workflow, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	var matches []*models.Workflow

	for _, workflow := range r.p.workflows {
		if workflow.IsActive && workflow.EntityType == entityType && workflow.TriggerType == trigger {
			matches = append(matches, clone(workflow))
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.Before(matches[j].CreatedAt)
	})

	return matches, nil
}

func (r *workflowRepo) ActiveTimeBased(_ context.Context) ([]*models.Workflow, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	var matches []*models.Workflow

	for _, workflow := range r.p.workflows {
		if workflow.IsActive && workflow.TriggerType == models.TriggerTypeTimeBased {
			matches = append(matches, clone(workflow))
		}
	}

	return matches, nil
}

func (r *workflowRepo) Save(_ context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()

	if workflow.ID == "" {
		workflow.ID = uuid.NewString()
	}

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.workflows[workflow.ID] = clone(workflow)

	return nil
}

func (r *workflowRepo) Delete(_ context.Context, id string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, ok := r.p.workflows[id]; !ok {
		return persistence.ErrWorkflowNotFound
	}

	delete(r.p.workflows, id)

	// Cascade: runs belong to their workflow.
	for runID, run := range r.p.runs {
		if run.WorkflowID == id {
			delete(r.p.runs, runID)
		}
	}

	return nil
}

type runRepo struct{ p *Persistence }

func (r *runRepo) ByID(_ context.Context, id string) (*models.WorkflowRun, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	run, ok := r.p.runs[id]
	if !ok {
		return nil, persistence.ErrRunNotFound
	}

	return clone(run), nil
}

func (r *runRepo) ByWorkflow(_ context.Context, workflowID string) ([]*models.WorkflowRun, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	var runs []*models.WorkflowRun

	for _, run := range r.p.runs {
		if run.WorkflowID == workflowID {
			runs = append(runs, clone(run))
		}
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	return runs, nil
}

func (r *runRepo) Save(_ context.Context, run *models.WorkflowRun) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	existing, ok := r.p.runs[run.ID]
	if ok && existing.Terminal() {
		return persistence.ErrRunTerminal
	}

	r.p.runs[run.ID] = clone(run)

	return nil
}

func (r *runRepo) ClaimDue(_ context.Context, now time.Time, limit int) ([]*models.WorkflowRun, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	var due []*models.WorkflowRun

	// Claimed runs stay running with resume_at pushed out by the lease, so a
	// claim that never completes becomes due again once the lease passes.
	for _, run := range r.p.runs {
		claimable := run.Status == models.RunStatusWaiting || run.Status == models.RunStatusRunning
		if claimable && run.ResumeAt != nil && !run.ResumeAt.After(now) {
			due = append(due, run)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].ResumeAt.Before(*due[j].ResumeAt)
	})

	if len(due) > limit {
		due = due[:limit]
	}

	lease := now.Add(persistence.ClaimLease)
	claimed := make([]*models.WorkflowRun, 0, len(due))

	for _, run := range due {
		run.Status = models.RunStatusRunning
		leaseCopy := lease
		run.ResumeAt = &leaseCopy
		claimed = append(claimed, clone(run))
	}

	return claimed, nil
}

type webhookRepo struct{ p *Persistence }

func (r *webhookRepo) All(_ context.Context) ([]*models.Webhook, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	webhooks := make([]*models.Webhook, 0, len(r.p.webhooks))

	for _, webhook := range r.p.webhooks {
		if webhook.DeletedAt == nil {
			webhooks = append(webhooks, clone(webhook))
		}
	}

	sort.Slice(webhooks, func(i, j int) bool {
		return webhooks[i].CreatedAt.Before(webhooks[j].CreatedAt)
	})

	return webhooks, nil
}

func (r *webhookRepo) ByID(_ context.Context, id string) (*models.Webhook, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	webhook, ok := r.p.webhooks[id]
	if !ok {
		return nil, persistence.ErrWebhookNotFound
	}

	return clone(webhook), nil
}

func (r *webhookRepo) SubscribedTo(_ context.Context, event string) ([]*models.Webhook, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	var matches []*models.Webhook

	for _, webhook := range r.p.webhooks {
		if webhook.Dispatchable() && webhook.SubscribedTo(event) {
			matches = append(matches, clone(webhook))
		}
	}

	return matches, nil
}

func (r *webhookRepo) Save(_ context.Context, webhook *models.Webhook) error {
	now := time.Now().UTC()

	if webhook.ID == "" {
		webhook.ID = uuid.NewString()
	}

	if webhook.CreatedAt.IsZero() {
		webhook.CreatedAt = now
	}

	webhook.UpdatedAt = now

	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.webhooks[webhook.ID] = clone(webhook)

	return nil
}

func (r *webhookRepo) SoftDelete(_ context.Context, id string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	webhook, ok := r.p.webhooks[id]
	if !ok {
		return persistence.ErrWebhookNotFound
	}

	now := time.Now().UTC()
	webhook.DeletedAt = &now
	webhook.IsActive = false
	webhook.UpdatedAt = now

	return nil
}

type deliveryRepo struct{ p *Persistence }

func (r *deliveryRepo) ByID(_ context.Context, id string) (*models.WebhookDelivery, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	delivery, ok := r.p.deliveries[id]
	if !ok {
		return nil, persistence.ErrDeliveryNotFound
	}

	return clone(delivery), nil
}

func (r *deliveryRepo) ByWebhook(_ context.Context, webhookID string) ([]*models.WebhookDelivery, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	var deliveries []*models.WebhookDelivery

	for _, delivery := range r.p.deliveries {
		if delivery.WebhookID == webhookID {
			deliveries = append(deliveries, clone(delivery))
		}
	}

	sort.Slice(deliveries, func(i, j int) bool {
		return deliveries[i].CreatedAt.After(deliveries[j].CreatedAt)
	})

	return deliveries, nil
}

func (r *deliveryRepo) Save(_ context.Context, delivery *models.WebhookDelivery) error {
	now := time.Now().UTC()

	if delivery.ID == "" {
		delivery.ID = uuid.NewString()
	}

	if delivery.CreatedAt.IsZero() {
		delivery.CreatedAt = now
	}

	delivery.UpdatedAt = now

	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.deliveries[delivery.ID] = clone(delivery)

	return nil
}

func (r *deliveryRepo) ClaimDue(_ context.Context, now time.Time, limit int) ([]*models.WebhookDelivery, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	var due []*models.WebhookDelivery

	// Pending deliveries whose lease has expired are claimable again: the
	// attempt that claimed them died before recording an outcome.
	for _, delivery := range r.p.deliveries {
		claimable := delivery.Status == models.DeliveryStatusFailed ||
			delivery.Status == models.DeliveryStatusPending
		if claimable &&
			delivery.NextRetryAt != nil && !delivery.NextRetryAt.After(now) &&
			delivery.Attempts < models.MaxDeliveryAttempts {
			due = append(due, delivery)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].NextRetryAt.Before(*due[j].NextRetryAt)
	})

	if len(due) > limit {
		due = due[:limit]
	}

	lease := now.Add(persistence.ClaimLease)
	claimed := make([]*models.WebhookDelivery, 0, len(due))

	for _, delivery := range due {
		delivery.Status = models.DeliveryStatusPending
		leaseCopy := lease
		delivery.NextRetryAt = &leaseCopy
		claimed = append(claimed, clone(delivery))
	}

	return claimed, nil
}

func (r *deliveryRepo) Claim(_ context.Context, id string) (*models.WebhookDelivery, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	delivery, ok := r.p.deliveries[id]
	if !ok {
		return nil, persistence.ErrDeliveryNotFound
	}

	if delivery.Status != models.DeliveryStatusFailed || delivery.Attempts >= models.MaxDeliveryAttempts {
		return nil, persistence.ErrDeliveryNotClaimable
	}

	delivery.Status = models.DeliveryStatusPending
	lease := time.Now().UTC().Add(persistence.ClaimLease)
	delivery.NextRetryAt = &lease

	return clone(delivery), nil
}
