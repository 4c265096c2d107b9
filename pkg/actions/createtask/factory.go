package createtask

import (
	"github.com/flowpilot-io/flowpilot/pkg/actions"
	"github.com/flowpilot-io/flowpilot/pkg/models"
)

type ActionFactory struct {
	tasks actions.TaskCreator
}

func NewActionFactory(tasks actions.TaskCreator) *ActionFactory {
	return &ActionFactory{tasks: tasks}
}

func (*ActionFactory) ID() models.ActionType {
	return models.ActionTypeCreateTask
}

func (f *ActionFactory) Create(config map[string]any) (actions.Action, error) {
	return NewCreateTaskAction(config, f.tasks)
}
