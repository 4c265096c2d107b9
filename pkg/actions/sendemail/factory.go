package sendemail

import (
	"github.com/flowpilot-io/flowpilot/pkg/actions"
	"github.com/flowpilot-io/flowpilot/pkg/models"
)

type ActionFactory struct {
	templates actions.TemplateStore
	directory actions.Directory
	mailer    actions.EmailSender
}

func NewActionFactory(templates actions.TemplateStore, directory actions.Directory, mailer actions.EmailSender) *ActionFactory {
	return &ActionFactory{templates: templates, directory: directory, mailer: mailer}
}

func (*ActionFactory) ID() models.ActionType {
	return models.ActionTypeSendEmail
}

func (f *ActionFactory) Create(config map[string]any) (actions.Action, error) {
	return NewSendEmailAction(config, f.templates, f.directory, f.mailer)
}
