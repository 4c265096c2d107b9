package assignuser

import (
	"github.com/flowpilot-io/flowpilot/pkg/actions"
	"github.com/flowpilot-io/flowpilot/pkg/models"
	"github.com/flowpilot-io/flowpilot/pkg/rotation"
)

type ActionFactory struct {
	records  actions.RecordStore
	rotation rotation.Store
}

func NewActionFactory(records actions.RecordStore, rotationStore rotation.Store) *ActionFactory {
	return &ActionFactory{records: records, rotation: rotationStore}
}

func (*ActionFactory) ID() models.ActionType {
	return models.ActionTypeAssignUser
}

func (f *ActionFactory) Create(config map[string]any) (actions.Action, error) {
	return NewAssignUserAction(config, f.records, f.rotation)
}
