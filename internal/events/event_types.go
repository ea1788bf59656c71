package events

import (
	"time"

	"github.com/itsm-core/incident-engine/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventIncidentCreated       EventType = "incident_created"
	EventIncidentUpdated       EventType = "incident_updated"
	EventIncidentStatusChanged EventType = "incident_status_changed"
	EventWorkflowCreated       EventType = "workflow_created"
	EventWorkflowAdvanced      EventType = "workflow_advanced"
	EventWorkflowRolledBack    EventType = "workflow_rolled_back"
	EventWorkflowCancelled     EventType = "workflow_cancelled"
)

// EventTypes lists every event the services publish.
var EventTypes = []EventType{
	EventIncidentCreated,
	EventIncidentUpdated,
	EventIncidentStatusChanged,
	EventWorkflowCreated,
	EventWorkflowAdvanced,
	EventWorkflowRolledBack,
	EventWorkflowCancelled,
}

// Event represents a domain event emitted by services after commit.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	OrgID     string      `json:"org_id"`
	EntityID  string      `json:"entity_id"`
	ActorID   string      `json:"actor_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// IncidentCreatedPayload payload.
type IncidentCreatedPayload struct {
	TicketNumber string          `json:"ticket_number"`
	Priority     domain.Priority `json:"priority"`
	Title        string          `json:"title"`
	AssigneeID   *string         `json:"assignee_id,omitempty"`
	TeamID       *string         `json:"team_id,omitempty"`
}

// IncidentUpdatedPayload lists the fields an update touched.
type IncidentUpdatedPayload struct {
	Changed []string `json:"changed"`
}

// IncidentStatusChangedPayload payload.
type IncidentStatusChangedPayload struct {
	TicketNumber string                `json:"ticket_number"`
	OldStatus    domain.IncidentStatus `json:"old_status"`
	NewStatus    domain.IncidentStatus `json:"new_status"`
	AssigneeID   *string               `json:"assignee_id,omitempty"`
}

// WorkflowCreatedPayload payload.
type WorkflowCreatedPayload struct {
	TemplateID *string `json:"template_id,omitempty"`
	IncidentID *string `json:"incident_id,omitempty"`
	TaskCount  int     `json:"task_count"`
}

// WorkflowStepPayload describes a step movement.
type WorkflowStepPayload struct {
	PreviousStepID *string               `json:"previous_step_id,omitempty"`
	CurrentStepID  *string               `json:"current_step_id,omitempty"`
	Action         domain.StepAction     `json:"action,omitempty"`
	Status         domain.WorkflowStatus `json:"status"`
	Reason         string                `json:"reason,omitempty"`
}
