package actions

import (
	"context"

	"github.com/flowpilot-io/flowpilot/pkg/models"
)

// Task is the task-creation payload handed to the TaskCreator collaborator.
type Task struct {
	ID          string            `json:"id"`
	EntityType  models.EntityType `json:"entity_type"`
	EntityID    string            `json:"entity_id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Priority    string            `json:"priority"`
}

// EmailTemplate is a named email template resolved by the TemplateStore.
// Subject and Body support text/template expressions over the run context.
type EmailTemplate struct {
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// EmailMessage is an outbound email handed to the EmailSender collaborator.
type EmailMessage struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// RecordStore mutates fields on business entities. Implementations return
// ErrValidation for fields that are not mutable on the entity type and
// ErrNotFound for unknown entities.
type RecordStore interface {
	UpdateField(ctx context.Context, entityType models.EntityType, entityID, field string, value any) error
	AssignOwner(ctx context.Context, entityType models.EntityType, entityID, userID string) error
}

// TaskCreator creates tasks referencing a business entity. Implementations
// return ErrDependency when the task subsystem is unavailable.
type TaskCreator interface {
	CreateTask(ctx context.Context, task Task) error
}

// TemplateStore resolves email templates by name.
type TemplateStore interface {
	TemplateByName(ctx context.Context, name string) (*EmailTemplate, error)
}

// Directory resolves user information for recipient selection.
type Directory interface {
	OwnerEmail(ctx context.Context, entityType models.EntityType, entityID string) (string, error)
}

// EmailSender delivers rendered emails. Transient provider errors are logged
// by the send_email action and never fail the step.
type EmailSender interface {
	Send(ctx context.Context, message EmailMessage) error
}
