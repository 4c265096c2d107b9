package sendemail

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowpilot-io/flowpilot/pkg/actions"
	"github.com/flowpilot-io/flowpilot/pkg/models"
)

type fakeTemplateStore struct {
	templates map[string]*actions.EmailTemplate
}

func (s *fakeTemplateStore) TemplateByName(_ context.Context, name string) (*actions.EmailTemplate, error) {
	return s.templates[name], nil
}

type fakeDirectory struct {
	emails map[string]string
}

func (d *fakeDirectory) OwnerEmail(_ context.Context, _ models.EntityType, entityID string) (string, error) {
	return d.emails[entityID], nil
}

type fakeMailer struct {
	sent []actions.EmailMessage
	err  error
}

func (m *fakeMailer) Send(_ context.Context, message actions.EmailMessage) error {
	m.sent = append(m.sent, message)

	return m.err
}

func fixtures() (*fakeTemplateStore, *fakeDirectory, *fakeMailer) {
	templates := &fakeTemplateStore{templates: map[string]*actions.EmailTemplate{
		"deal-won": {
			Name:    "deal-won",
			Subject: "{{.name}} closed!",
			Body:    "The deal with {{.name}} is won.",
		},
	}}
	directory := &fakeDirectory{emails: map[string]string{"deal-42": "owner@example.com"}}
	mailer := &fakeMailer{}

	return templates, directory, mailer
}

func dealRun() *models.RunContext {
	return &models.RunContext{
		WorkflowID: "wf-1",
		RunID:      "run-1",
		EntityType: models.EntityTypeDeal,
		EntityID:   "deal-42",
		Context:    map[string]any{"name": "Acme", "email": "contact@acme.com"},
	}
}

func TestNewSendEmailAction(t *testing.T) {
	templates, directory, mailer := fixtures()

	_, err := NewSendEmailAction(map[string]any{"recipient": "owner"}, templates, directory, mailer)
	assert.ErrorIs(t, err, actions.ErrValidation)

	_, err = NewSendEmailAction(map[string]any{"template": "deal-won", "recipient": "everyone"}, templates, directory, mailer)
	assert.ErrorIs(t, err, actions.ErrValidation)
}

func TestSendEmailToOwner(t *testing.T) {
	templates, directory, mailer := fixtures()
	action, err := NewSendEmailAction(map[string]any{"template": "deal-won", "recipient": "owner"}, templates, directory, mailer)
	require.NoError(t, err)

	output, err := action.Execute(t.Context(), dealRun(), slog.Default())
	require.NoError(t, err)

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "owner@example.com", mailer.sent[0].To)
	assert.Equal(t, "Acme closed!", mailer.sent[0].Subject)
	assert.Equal(t, "The deal with Acme is won.", mailer.sent[0].Body)
	assert.Equal(t, StatusSent, output[StatusKey])
}

func TestSendEmailToContact(t *testing.T) {
	templates, directory, mailer := fixtures()
	action, err := NewSendEmailAction(map[string]any{"template": "deal-won", "recipient": "contact"}, templates, directory, mailer)
	require.NoError(t, err)

	_, err = action.Execute(t.Context(), dealRun(), slog.Default())
	require.NoError(t, err)

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "contact@acme.com", mailer.sent[0].To)
}

func TestSendEmailMissingTemplate(t *testing.T) {
	templates, directory, mailer := fixtures()
	action, err := NewSendEmailAction(map[string]any{"template": "nope", "recipient": "owner"}, templates, directory, mailer)
	require.NoError(t, err)

	_, err = action.Execute(t.Context(), dealRun(), slog.Default())
	assert.ErrorIs(t, err, actions.ErrNotFound)
	assert.Empty(t, mailer.sent)
}

func TestSendEmailMissingRecipient(t *testing.T) {
	templates, directory, mailer := fixtures()
	action, err := NewSendEmailAction(map[string]any{"template": "deal-won", "recipient": "contact"}, templates, directory, mailer)
	require.NoError(t, err)

	run := dealRun()
	delete(run.Context, "email")

	_, err = action.Execute(t.Context(), run, slog.Default())
	assert.ErrorIs(t, err, actions.ErrNotFound)
}

func TestSendEmailProviderErrorIsBestEffort(t *testing.T) {
	templates, directory, mailer := fixtures()
	mailer.err = fmt.Errorf("%w: smtp timeout", actions.ErrDependency)

	action, err := NewSendEmailAction(map[string]any{"template": "deal-won", "recipient": "owner"}, templates, directory, mailer)
	require.NoError(t, err)

	output, err := action.Execute(t.Context(), dealRun(), slog.Default())
	require.NoError(t, err, "transient provider errors never fail the step")
	assert.Equal(t, StatusBestEffort, output[StatusKey])
}

func TestSendEmailRejectedMessageFailsStep(t *testing.T) {
	templates, directory, mailer := fixtures()
	mailer.err = fmt.Errorf("%w: recipient address rejected", actions.ErrValidation)

	action, err := NewSendEmailAction(map[string]any{"template": "deal-won", "recipient": "owner"}, templates, directory, mailer)
	require.NoError(t, err)

	_, err = action.Execute(t.Context(), dealRun(), slog.Default())
	assert.ErrorIs(t, err, actions.ErrValidation, "only retryable provider errors are best-effort")
}
