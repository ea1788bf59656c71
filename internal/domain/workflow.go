package domain

import (
	"strings"
	"time"
)

// WorkflowStatus enumerates lifecycle states for workflows.
type WorkflowStatus string

const (
	WorkflowStatusPending    WorkflowStatus = "pending"
	WorkflowStatusInProgress WorkflowStatus = "in_progress"
	WorkflowStatusCompleted  WorkflowStatus = "completed"
	WorkflowStatusCancelled  WorkflowStatus = "cancelled"
	WorkflowStatusFailed     WorkflowStatus = "failed"
)

// StepStatus enumerates lifecycle states for a single workflow step.
type StepStatus string

const (
	StepStatusPending    StepStatus = "pending"
	StepStatusInProgress StepStatus = "in_progress"
	StepStatusCompleted  StepStatus = "completed"
	StepStatusFailed     StepStatus = "failed"
	StepStatusSkipped    StepStatus = "skipped"
)

// StepType describes how a step is carried out.
type StepType string

const (
	StepTypeAuto     StepType = "auto"
	StepTypeManual   StepType = "manual"
	StepTypeApproval StepType = "approval"
)

// ParseStepType validates a step type; empty input defaults to manual.
func ParseStepType(raw string) (StepType, bool) {
	switch t := StepType(strings.ToLower(strings.TrimSpace(raw))); t {
	case "":
		return StepTypeManual, true
	case StepTypeAuto, StepTypeManual, StepTypeApproval:
		return t, true
	}
	return "", false
}

// StepAction is the operator decision applied to the current step.
type StepAction string

const (
	StepActionApprove StepAction = "approve"
	StepActionReject  StepAction = "reject"
	StepActionSkip    StepAction = "skip"
)

// ParseStepAction validates an action. "complete" is accepted as approve.
func ParseStepAction(raw string) (StepAction, bool) {
	switch a := StepAction(strings.ToLower(strings.TrimSpace(raw))); a {
	case StepActionApprove, StepActionReject, StepActionSkip:
		return a, true
	case "complete":
		return StepActionApprove, true
	}
	return "", false
}

// WorkflowStep is an element of Workflow.Steps; it has no identity outside its workflow.
type WorkflowStep struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Type        StepType       `json:"type"`
	Assignee    string         `json:"assignee,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
	NextSteps   []string       `json:"nextSteps,omitempty"`
	Status      StepStatus     `json:"status"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
	CompletedBy *string        `json:"completedBy,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
}

// ResetProgress clears completion state and sets the status.
func (s *WorkflowStep) ResetProgress(status StepStatus) {
	s.Status = status
	s.CompletedAt = nil
	s.CompletedBy = nil
	s.Output = nil
}

// SLAMinutes reads config.slaMinutes; zero when absent or not numeric.
func (s *WorkflowStep) SLAMinutes() int {
	return ConfigMinutes(s.Config, "slaMinutes")
}

// Workflow is a step sequence bound to a business entity.
type Workflow struct {
	ID            string
	OrgID         string
	Name          string
	Type          string
	TemplateID    *string
	EntityType    string
	EntityID      string
	IncidentID    *string
	Status        WorkflowStatus
	Steps         []WorkflowStep
	CurrentStepID *string
	Context       WorkflowContext
	CompletedAt   *time.Time
	Version       int
	CreatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time

	stepIndex map[string]int
}

// StepIndex returns the position of the step with the given id, or -1.
func (w *Workflow) StepIndex(id string) int {
	if len(w.stepIndex) != len(w.Steps) {
		w.reindex()
	}
	if idx, ok := w.stepIndex[id]; ok {
		return idx
	}
	return -1
}

// Step returns the step with the given id.
func (w *Workflow) Step(id string) (*WorkflowStep, bool) {
	idx := w.StepIndex(id)
	if idx < 0 {
		return nil, false
	}
	return &w.Steps[idx], true
}

// CurrentStep resolves CurrentStepID against the step list.
func (w *Workflow) CurrentStep() (*WorkflowStep, int, bool) {
	if w.CurrentStepID == nil {
		return nil, -1, false
	}
	idx := w.StepIndex(*w.CurrentStepID)
	if idx < 0 {
		return nil, -1, false
	}
	return &w.Steps[idx], idx, true
}

func (w *Workflow) reindex() {
	w.stepIndex = make(map[string]int, len(w.Steps))
	for i := range w.Steps {
		w.stepIndex[w.Steps[i].ID] = i
	}
}

// Clone returns a deep copy safe to mutate independently.
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}
	c := *w
	c.stepIndex = nil
	c.TemplateID = cloneString(w.TemplateID)
	c.IncidentID = cloneString(w.IncidentID)
	c.CurrentStepID = cloneString(w.CurrentStepID)
	c.CompletedAt = cloneTime(w.CompletedAt)
	c.Context = w.Context.Clone()
	c.Steps = make([]WorkflowStep, len(w.Steps))
	for i, step := range w.Steps {
		step.Config = CloneMap(step.Config)
		step.Output = CloneMap(step.Output)
		step.NextSteps = append([]string(nil), step.NextSteps...)
		step.CompletedAt = cloneTime(step.CompletedAt)
		step.CompletedBy = cloneString(step.CompletedBy)
		c.Steps[i] = step
	}
	return &c
}

// ConfigMinutes reads a positive minute count from a free-form config map.
func ConfigMinutes(config map[string]any, key string) int {
	if config == nil {
		return 0
	}
	n, ok := toInt(config[key])
	if !ok || n < 0 {
		return 0
	}
	return n
}
