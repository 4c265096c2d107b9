// Package sendemail implements the send_email action: resolve a template and
// a recipient, render and hand off to the email collaborator.
//
// Transient provider errors never fail the step: the send is recorded as
// best-effort and the run continues. Missing templates or recipients are
// configuration problems and do fail it.
package sendemail

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flowpilot-io/flowpilot/pkg/actions"
	"github.com/flowpilot-io/flowpilot/pkg/models"
	"github.com/flowpilot-io/flowpilot/pkg/template"
)

const (
	RecipientOwner   = "owner"
	RecipientContact = "contact"
)

// StatusKey is the key under which the send status is reported in the action
// result.
const StatusKey = "email_status"

const (
	StatusSent       = "sent"
	StatusBestEffort = "sent_best_effort"
)

type SendEmailAction struct {
	Template  string
	Recipient string

	templates actions.TemplateStore
	directory actions.Directory
	mailer    actions.EmailSender
}

func NewSendEmailAction(
	config map[string]any,
	templates actions.TemplateStore,
	directory actions.Directory,
	mailer actions.EmailSender,
) (*SendEmailAction, error) {
	name, _ := config["template"].(string)
	if name == "" {
		return nil, fmt.Errorf("%w: send_email requires a template", actions.ErrValidation)
	}

	recipient, _ := config["recipient"].(string)
	if recipient != RecipientOwner && recipient != RecipientContact {
		return nil, fmt.Errorf("%w: send_email recipient must be %q or %q", actions.ErrValidation, RecipientOwner, RecipientContact)
	}

	return &SendEmailAction{
		Template:  name,
		Recipient: recipient,
		templates: templates,
		directory: directory,
		mailer:    mailer,
	}, nil
}

func (a *SendEmailAction) Execute(ctx context.Context, run *models.RunContext, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("action_type", "send_email", "template", a.Template)

	tmpl, err := a.templates.TemplateByName(ctx, a.Template)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve template %q: %w", a.Template, err)
	}

	if tmpl == nil {
		return nil, fmt.Errorf("%w: template %q", actions.ErrNotFound, a.Template)
	}

	to, err := a.resolveRecipient(ctx, run)
	if err != nil {
		return nil, err
	}

	subject, err := template.Render(tmpl.Subject, run.Context)
	if err != nil {
		return nil, fmt.Errorf("%w: bad subject template: %v", actions.ErrValidation, err)
	}

	body, err := template.Render(tmpl.Body, run.Context)
	if err != nil {
		return nil, fmt.Errorf("%w: bad body template: %v", actions.ErrValidation, err)
	}

	err = a.mailer.Send(ctx, actions.EmailMessage{To: to, Subject: subject, Body: body})
	if err != nil {
		// Only transient provider hiccups are best-effort; anything else
		// (bad address, rejected message) fails the step.
		if !actions.IsRetryable(err) {
			return nil, fmt.Errorf("failed to send email: %w", err)
		}

		logger.WarnContext(ctx, "Email provider error, send recorded as best-effort", "error", err, "to", to)

		return map[string]any{StatusKey: StatusBestEffort, "to": to}, nil
	}

	logger.InfoContext(ctx, "Email sent", "to", to)

	return map[string]any{StatusKey: StatusSent, "to": to}, nil
}

func (a *SendEmailAction) resolveRecipient(ctx context.Context, run *models.RunContext) (string, error) {
	switch a.Recipient {
	case RecipientOwner:
		email, err := a.directory.OwnerEmail(ctx, run.EntityType, run.EntityID)
		if err != nil {
			return "", fmt.Errorf("failed to resolve owner email: %w", err)
		}

		if email == "" {
			return "", fmt.Errorf("%w: owner email for %s %s", actions.ErrNotFound, run.EntityType, run.EntityID)
		}

		return email, nil
	default:
		email, _ := run.Context["email"].(string)
		if email == "" {
			return "", fmt.Errorf("%w: contact email on %s %s", actions.ErrNotFound, run.EntityType, run.EntityID)
		}

		return email, nil
	}
}
