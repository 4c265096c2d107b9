package updatefield

import (
	"github.com/flowpilot-io/flowpilot/pkg/actions"
	"github.com/flowpilot-io/flowpilot/pkg/models"
)

type ActionFactory struct {
	records actions.RecordStore
}

func NewActionFactory(records actions.RecordStore) *ActionFactory {
	return &ActionFactory{records: records}
}

func (*ActionFactory) ID() models.ActionType {
	return models.ActionTypeUpdateField
}

func (f *ActionFactory) Create(config map[string]any) (actions.Action, error) {
	return NewUpdateFieldAction(config, f.records)
}
