package dto

import (
	"time"

	"github.com/itsm-core/incident-engine/internal/domain"
)

// WorkflowStepRequest describes one step of an ad hoc workflow.
type WorkflowStepRequest struct {
	ID        string         `json:"id" validate:"required,max=64"`
	Name      string         `json:"name" validate:"required,max=255"`
	Type      string         `json:"type" validate:"omitempty,oneof=auto manual approval"`
	Assignee  string         `json:"assignee" validate:"max=64"`
	Config    map[string]any `json:"config"`
	NextSteps []string       `json:"nextSteps" validate:"dive,required"`
}

// CreateWorkflowRequest payload for POST /workflows.
type CreateWorkflowRequest struct {
	Name       string                `json:"name" validate:"required,max=255"`
	Type       string                `json:"type" validate:"max=64"`
	EntityType string                `json:"entityType" validate:"max=64"`
	EntityID   string                `json:"entityId" validate:"max=64"`
	IncidentID *string               `json:"incidentId" validate:"omitempty,uuid"`
	Steps      []WorkflowStepRequest `json:"steps" validate:"required,min=1,dive"`
	Context    map[string]any        `json:"context"`
}

// CreateFromTemplateRequest payload for POST /workflows/from-template.
type CreateFromTemplateRequest struct {
	TemplateID      string         `json:"templateId" validate:"required"`
	Name            string         `json:"name" validate:"max=255"`
	EntityType      string         `json:"entityType" validate:"max=64"`
	EntityID        string         `json:"entityId" validate:"max=64"`
	IncidentID      *string        `json:"incidentId" validate:"omitempty,uuid"`
	Context         map[string]any `json:"context"`
	AutoCreateTasks bool           `json:"autoCreateTasks"`
}

// AdvanceRequest payload for POST /workflows/:id/advance.
type AdvanceRequest struct {
	Action     string         `json:"action" validate:"required"`
	Data       map[string]any `json:"data"`
	NextStepID *string        `json:"nextStepId" validate:"omitempty,min=1"`
}

// RollbackRequest payload for POST /workflows/:id/rollback.
type RollbackRequest struct {
	TargetStepID string `json:"targetStepId" validate:"required"`
	Reason       string `json:"reason" validate:"max=1000"`
}

// CancelRequest payload for POST /workflows/:id/cancel.
type CancelRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

// WorkflowResponse is the full workflow view.
type WorkflowResponse struct {
	ID            string                `json:"id"`
	OrgID         string                `json:"orgId"`
	Name          string                `json:"name"`
	Type          string                `json:"type"`
	TemplateID    *string               `json:"templateId"`
	EntityType    string                `json:"entityType"`
	EntityID      string                `json:"entityId"`
	IncidentID    *string               `json:"incidentId"`
	Status        domain.WorkflowStatus `json:"status"`
	Steps         []domain.WorkflowStep `json:"steps"`
	CurrentStepID *string               `json:"currentStepId"`
	Context       map[string]any        `json:"context"`
	CompletedAt   *time.Time            `json:"completedAt"`
	Version       int                   `json:"version"`
	CreatedBy     string                `json:"createdBy"`
	CreatedAt     time.Time             `json:"createdAt"`
	UpdatedAt     time.Time             `json:"updatedAt"`
}

// NewWorkflowResponse maps a workflow.
func NewWorkflowResponse(wf *domain.Workflow) WorkflowResponse {
	return WorkflowResponse{
		ID:            wf.ID,
		OrgID:         wf.OrgID,
		Name:          wf.Name,
		Type:          wf.Type,
		TemplateID:    wf.TemplateID,
		EntityType:    wf.EntityType,
		EntityID:      wf.EntityID,
		IncidentID:    wf.IncidentID,
		Status:        wf.Status,
		Steps:         wf.Steps,
		CurrentStepID: wf.CurrentStepID,
		Context:       wf.Context.Map(),
		CompletedAt:   wf.CompletedAt,
		Version:       wf.Version,
		CreatedBy:     wf.CreatedBy,
		CreatedAt:     wf.CreatedAt,
		UpdatedAt:     wf.UpdatedAt,
	}
}

// TaskResponse is the public view of a task.
type TaskResponse struct {
	ID               string            `json:"id"`
	Title            string            `json:"title"`
	Description      string            `json:"description"`
	Status           domain.TaskStatus `json:"status"`
	Priority         domain.Priority   `json:"priority"`
	AssigneeID       *string           `json:"assigneeId"`
	DueDate          *time.Time        `json:"dueDate"`
	EstimatedMinutes int               `json:"estimatedMinutes,omitempty"`
	Tags             []string          `json:"tags"`
	WorkflowID       *string           `json:"workflowId"`
	WorkflowStepID   *string           `json:"workflowStepId"`
	IncidentID       *string           `json:"incidentId"`
	SourceEntityType string            `json:"sourceEntityType"`
	SourceEntityID   string            `json:"sourceEntityId"`
	CreatedAt        time.Time         `json:"createdAt"`
}

// NewTaskResponse maps a task.
func NewTaskResponse(t *domain.Task) TaskResponse {
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	return TaskResponse{
		ID:               t.ID,
		Title:            t.Title,
		Description:      t.Description,
		Status:           t.Status,
		Priority:         t.Priority,
		AssigneeID:       t.AssigneeID,
		DueDate:          t.DueDate,
		EstimatedMinutes: t.EstimatedMinutes,
		Tags:             tags,
		WorkflowID:       t.WorkflowID,
		WorkflowStepID:   t.WorkflowStepID,
		IncidentID:       t.IncidentID,
		SourceEntityType: t.SourceEntityType,
		SourceEntityID:   t.SourceEntityID,
		CreatedAt:        t.CreatedAt,
	}
}

// WorkflowWithTasksResponse is returned by create-from-template.
type WorkflowWithTasksResponse struct {
	Workflow WorkflowResponse `json:"workflow"`
	Tasks    []TaskResponse   `json:"tasks"`
}
