package models

import "time"

// RunStatus is the lifecycle state of a workflow run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusWaiting   RunStatus = "waiting" // paused on a delay step
)

// StepOutcome records what happened to one step inside a run.
type StepOutcome string

const (
	StepOutcomeExecuted       StepOutcome = "executed"
	StepOutcomeSkipped        StepOutcome = "skipped"
	StepOutcomeShortCircuited StepOutcome = "short_circuited"
	StepOutcomeFailed         StepOutcome = "failed"
	StepOutcomeWaiting        StepOutcome = "waiting"
	StepOutcomeBestEffort     StepOutcome = "sent_best_effort"
)

// StepTrace is one entry of a run's per-step outcome log, appended in step
// order.
type StepTrace struct {
	Position  int         `json:"position"`
	Outcome   StepOutcome `json:"outcome"`
	Error     string      `json:"error,omitempty"`
	Detail    string      `json:"detail,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// WorkflowRun is one execution instance of a workflow against a triggering
// entity. The run carries its own snapshot of the step list so a concurrent
// definition update never affects it. Mutated only by the runner; immutable
// once Status is terminal.
type WorkflowRun struct {
	ID           string         `json:"id"`
	WorkflowID   string         `json:"workflow_id"`
	EntityType   EntityType     `json:"entity_type"`
	EntityID     string         `json:"entity_id"`
	Status       RunStatus      `json:"status"`
	Cursor       int            `json:"cursor"` // index of the next step to execute
	Steps        []*Step        `json:"steps"`  // snapshot taken at trigger time
	Context      map[string]any `json:"context"`
	Trace        []StepTrace    `json:"trace"`
	ErrorMessage string         `json:"error_message,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	ResumeAt     *time.Time     `json:"resume_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

// Terminal reports whether the run can no longer change.
func (r *WorkflowRun) Terminal() bool {
	return r.Status == RunStatusCompleted || r.Status == RunStatusFailed
}

// AppendTrace records a step outcome.
func (r *WorkflowRun) AppendTrace(position int, outcome StepOutcome, errMsg, detail string) {
	r.Trace = append(r.Trace, StepTrace{
		Position:  position,
		Outcome:   outcome,
		Error:     errMsg,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	})
}

// StepPreview is one entry of a dry-run report.
type StepPreview struct {
	Position int      `json:"position"`
	Kind     StepKind `json:"kind"`
	Result   string   `json:"result"`
	Detail   string   `json:"detail,omitempty"`
}

// TestReport is the result of executing a workflow in dry-run mode. Nothing
// in a test run mutates collaborator state or persists a run.
type TestReport struct {
	WorkflowID string         `json:"workflow_id"`
	Steps      []StepPreview  `json:"steps"`
	Context    map[string]any `json:"context"`
}
