package domain

import "time"

// TaskStatus enumerates lifecycle states for tasks.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// OpenTaskStatuses block incident resolution while any linked task holds them.
var OpenTaskStatuses = []TaskStatus{TaskStatusPending, TaskStatusInProgress}

// SourceEntityWorkflow marks tasks generated from a workflow.
const SourceEntityWorkflow = "workflow"

// Task is a unit of work; workflow-generated tasks carry correlation ids.
type Task struct {
	ID               string
	OrgID            string
	Title            string
	Description      string
	Status           TaskStatus
	Priority         Priority
	AssigneeID       *string
	DueDate          *time.Time
	EstimatedMinutes int
	Tags             []string
	WorkflowID       *string
	WorkflowStepID   *string
	IncidentID       *string
	SourceEntityType string
	SourceEntityID   string
	CreatedBy        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// WorkflowLinked reports whether the task counts toward the incident resolve gate.
func (t *Task) WorkflowLinked() bool {
	return (t.WorkflowID != nil && *t.WorkflowID != "") || t.SourceEntityType == SourceEntityWorkflow
}

// Clone returns a deep copy.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.AssigneeID = cloneString(t.AssigneeID)
	c.DueDate = cloneTime(t.DueDate)
	c.Tags = append([]string(nil), t.Tags...)
	c.WorkflowID = cloneString(t.WorkflowID)
	c.WorkflowStepID = cloneString(t.WorkflowStepID)
	c.IncidentID = cloneString(t.IncidentID)
	return &c
}
