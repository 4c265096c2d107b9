// Package crm is the HTTP client for the record backend. It implements
// every collaborator interface the actions depend on: record mutation, task
// creation, template resolution, user directory lookups and email handoff.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/flowpilot-io/flowpilot/pkg/actions"
	"github.com/flowpilot-io/flowpilot/pkg/models"
)

const defaultTimeout = 15 * time.Second

// Client talks to the CRM record backend. Backend errors are mapped onto
// the action error taxonomy: 4xx validation or not-found, everything else a
// retryable dependency error.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

type ClientOption func(*Client)

// WithToken sets the bearer token sent on every request.
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// WithClient injects the HTTP client, mostly for tests.
func WithClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultTimeout},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// UpdateField sets one field on an entity.
func (c *Client) UpdateField(ctx context.Context, entityType models.EntityType, entityID, field string, value any) error {
	path := fmt.Sprintf("/%ss/%s", entityType, entityID)

	return c.do(ctx, http.MethodPatch, path, map[string]any{"field": field, "value": value}, nil)
}

// AssignOwner sets the owning user of an entity.
func (c *Client) AssignOwner(ctx context.Context, entityType models.EntityType, entityID, userID string) error {
	path := fmt.Sprintf("/%ss/%s/owner", entityType, entityID)

	return c.do(ctx, http.MethodPut, path, map[string]any{"user_id": userID}, nil)
}

// CreateTask creates a task referencing an entity.
func (c *Client) CreateTask(ctx context.Context, task actions.Task) error {
	return c.do(ctx, http.MethodPost, "/tasks", task, nil)
}

// TemplateByName resolves an email template. A missing template is reported
// as nil, not an error; the action decides what that means.
func (c *Client) TemplateByName(ctx context.Context, name string) (*actions.EmailTemplate, error) {
	var tmpl actions.EmailTemplate

	err := c.do(ctx, http.MethodGet, "/templates/"+name, nil, &tmpl)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}

		return nil, err
	}

	return &tmpl, nil
}

// OwnerEmail resolves the email of an entity's owning user.
func (c *Client) OwnerEmail(ctx context.Context, entityType models.EntityType, entityID string) (string, error) {
	var owner struct {
		Email string `json:"email"`
	}

	path := fmt.Sprintf("/%ss/%s/owner", entityType, entityID)

	err := c.do(ctx, http.MethodGet, path, nil, &owner)
	if err != nil {
		if isNotFound(err) {
			return "", nil
		}

		return "", err
	}

	return owner.Email, nil
}

// Send hands a rendered email to the backend's outbound mail queue.
func (c *Client) Send(ctx context.Context, message actions.EmailMessage) error {
	return c.do(ctx, http.MethodPost, "/emails", message, nil)
}

func (c *Client) do(ctx context.Context, method, path string, payload, result any) error {
	var body io.Reader

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}

		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", actions.ErrDependency, method, path, err)
	}

	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", actions.ErrNotFound, method, path)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return fmt.Errorf("%w: %s %s returned %d", actions.ErrValidation, method, path, resp.StatusCode)
	default:
		return fmt.Errorf("%w: %s %s returned %d", actions.ErrDependency, method, path, resp.StatusCode)
	}

	if result != nil {
		err = json.NewDecoder(resp.Body).Decode(result)
		if err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, actions.ErrNotFound)
}
