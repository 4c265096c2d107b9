package runner

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/flowpilot-io/flowpilot/pkg/actions"
	"github.com/flowpilot-io/flowpilot/pkg/condition"
	"github.com/flowpilot-io/flowpilot/pkg/models"
)

// Simulator walks a workflow against a sample entity without touching any
// collaborator and without persisting a run. Config errors surface the same
// way a real run would fail on them.
type Simulator struct {
	registry *actions.Registry
	logger   *slog.Logger
}

func NewSimulator(registry *actions.Registry, logger *slog.Logger) *Simulator {
	return &Simulator{
		registry: registry,
		logger:   logger.With("module", "simulator"),
	}
}

// Test produces a step-by-step preview of what a run over the sample entity
// would do. Field updates are applied to a local context copy so later
// conditions see them, exactly as a real run would.
func (s *Simulator) Test(ctx context.Context, workflow *models.Workflow, sample map[string]any) (*models.TestReport, error) {
	simulated := maps.Clone(sample)
	if simulated == nil {
		simulated = map[string]any{}
	}

	report := &models.TestReport{
		WorkflowID: workflow.ID,
		Steps:      make([]models.StepPreview, 0, len(workflow.Steps)),
	}

	shortCircuited := false

	for _, step := range workflow.Steps {
		if shortCircuited {
			report.Steps = append(report.Steps, models.StepPreview{
				Position: step.Position,
				Kind:     step.Kind,
				Result:   "would skip",
			})

			continue
		}

		switch step.Kind {
		case models.StepKindCondition:
			passed := condition.Evaluate(simulated[step.Condition.Field], step.Condition.Operator, step.Condition.Value)
			if passed {
				report.Steps = append(report.Steps, models.StepPreview{
					Position: step.Position,
					Kind:     step.Kind,
					Result:   "would pass",
					Detail:   conditionDetail(step.Condition),
				})
			} else {
				shortCircuited = true
				report.Steps = append(report.Steps, models.StepPreview{
					Position: step.Position,
					Kind:     step.Kind,
					Result:   "would short-circuit",
					Detail:   conditionDetail(step.Condition),
				})
			}
		case models.StepKindAction:
			report.Steps = append(report.Steps, s.previewAction(step, simulated))
		case models.StepKindDelay:
			report.Steps = append(report.Steps, models.StepPreview{
				Position: step.Position,
				Kind:     step.Kind,
				Result:   "would pause",
				Detail:   fmt.Sprintf("for %d %s", step.Delay.Duration, step.Delay.Unit),
			})
		}
	}

	report.Context = simulated

	return report, nil
}

func (s *Simulator) previewAction(step *models.Step, simulated map[string]any) models.StepPreview {
	// Build the action to surface config errors; never execute it.
	_, err := s.registry.Create(step.Action.Type, step.Action.Config)
	if err != nil {
		return models.StepPreview{
			Position: step.Position,
			Kind:     step.Kind,
			Result:   "would fail",
			Detail:   err.Error(),
		}
	}

	if step.Action.Type == models.ActionTypeUpdateField {
		field, _ := step.Action.Config["field"].(string)
		simulated[field] = step.Action.Config["value"]
	}

	return models.StepPreview{
		Position: step.Position,
		Kind:     step.Kind,
		Result:   "would execute",
		Detail:   string(step.Action.Type),
	}
}

func conditionDetail(cond *models.ConditionConfig) string {
	return fmt.Sprintf("%s %s %v", cond.Field, cond.Operator, cond.Value)
}
