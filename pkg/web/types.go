// Package web provides the HTTP handlers and request/response types for the
// workflow and webhook API.
package web

import "github.com/flowpilot-io/flowpilot/pkg/models"

// CreateWorkflowRequest represents the request body for creating a workflow.
type CreateWorkflowRequest struct {
	Name          string         `json:"name"           validate:"required,min=3"`
	EntityType    string         `json:"entity_type"    validate:"required"`
	TriggerType   string         `json:"trigger_type"   validate:"required"`
	TriggerConfig map[string]any `json:"trigger_config,omitempty"`
	IsActive      bool           `json:"is_active"`
	Steps         []*models.Step `json:"steps"          validate:"required,min=1"`
}

// Workflow converts the request into a domain workflow.
func (r *CreateWorkflowRequest) Workflow() *models.Workflow {
	return &models.Workflow{
		Name:          r.Name,
		EntityType:    models.EntityType(r.EntityType),
		TriggerType:   models.TriggerType(r.TriggerType),
		TriggerConfig: r.TriggerConfig,
		IsActive:      r.IsActive,
		Steps:         r.Steps,
	}
}

// ExecuteWorkflowRequest represents the request body for a manual trigger.
type ExecuteWorkflowRequest struct {
	EntityID string         `json:"entity_id" validate:"required"`
	Snapshot map[string]any `json:"snapshot,omitempty"`
}

// TestWorkflowRequest represents the request body for a dry run.
type TestWorkflowRequest struct {
	Sample map[string]any `json:"sample"`
}

// CreateWebhookRequest represents the request body for creating a webhook.
type CreateWebhookRequest struct {
	Name     string   `json:"name"      validate:"required,min=3"`
	URL      string   `json:"url"       validate:"required,url"`
	Secret   string   `json:"secret"    validate:"required"`
	Events   []string `json:"events"    validate:"required,min=1"`
	IsActive bool     `json:"is_active"`
}

// Webhook converts the request into a domain webhook.
func (r *CreateWebhookRequest) Webhook() *models.Webhook {
	return &models.Webhook{
		Name:     r.Name,
		URL:      r.URL,
		Secret:   r.Secret,
		Events:   r.Events,
		IsActive: r.IsActive,
	}
}

// WebhookResponse is a webhook with its secret redacted.
type WebhookResponse struct {
	*models.Webhook

	Secret string `json:"secret,omitempty"`
}

// TransformWebhookResponse strips the signing secret from API responses.
func TransformWebhookResponse(hook *models.Webhook) WebhookResponse {
	return WebhookResponse{Webhook: hook}
}

// TransformWebhookResponses strips secrets from a webhook list.
func TransformWebhookResponses(hooks []*models.Webhook) []WebhookResponse {
	responses := make([]WebhookResponse, 0, len(hooks))
	for _, hook := range hooks {
		responses = append(responses, TransformWebhookResponse(hook))
	}

	return responses
}
