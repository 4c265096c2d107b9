// Package createtask implements the create_task action: create a task
// referencing the triggering entity.
package createtask

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/flowpilot-io/flowpilot/pkg/actions"
	"github.com/flowpilot-io/flowpilot/pkg/models"
	"github.com/flowpilot-io/flowpilot/pkg/template"
)

type CreateTaskAction struct {
	Title       string
	Description string
	Priority    string
	tasks       actions.TaskCreator
}

func NewCreateTaskAction(config map[string]any, tasks actions.TaskCreator) (*CreateTaskAction, error) {
	title, _ := config["title"].(string)
	if title == "" {
		return nil, fmt.Errorf("%w: create_task requires a title", actions.ErrValidation)
	}

	description, _ := config["description"].(string)

	priority, _ := config["priority"].(string)
	if priority == "" {
		priority = "medium"
	}

	return &CreateTaskAction{
		Title:       title,
		Description: description,
		Priority:    priority,
		tasks:       tasks,
	}, nil
}

func (a *CreateTaskAction) Execute(ctx context.Context, run *models.RunContext, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("action_type", "create_task")

	title, err := template.Render(a.Title, run.Context)
	if err != nil {
		return nil, fmt.Errorf("%w: bad title template: %v", actions.ErrValidation, err)
	}

	description, err := template.Render(a.Description, run.Context)
	if err != nil {
		return nil, fmt.Errorf("%w: bad description template: %v", actions.ErrValidation, err)
	}

	task := actions.Task{
		ID:          uuid.NewString(),
		EntityType:  run.EntityType,
		EntityID:    run.EntityID,
		Title:       title,
		Description: description,
		Priority:    a.Priority,
	}

	err = a.tasks.CreateTask(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	logger.InfoContext(ctx, "Created task", "task_id", task.ID, "title", task.Title)

	return map[string]any{"task_id": task.ID}, nil
}
