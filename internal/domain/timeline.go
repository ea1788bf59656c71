package domain

import "time"

// Timeline actions.
const (
	TimelineActionCreated          = "created"
	TimelineActionUpdated          = "updated"
	TimelineActionStrictTransition = "strict_transition"
)

// TimelineEntry is an immutable incident activity record.
type TimelineEntry struct {
	ID             string
	OrgID          string
	IncidentID     string
	Action         string
	PreviousStatus *IncidentStatus
	NewStatus      *IncidentStatus
	ActorID        string
	Metadata       map[string]any
	CreatedAt      time.Time
}

// Audited entity types.
const (
	AuditEntityIncident = "incident"
	AuditEntityWorkflow = "workflow"
)

// Audit actions.
const (
	AuditActionIncidentCreated    = "incident_created"
	AuditActionIncidentUpdated    = "incident_updated"
	AuditActionIncidentTransition = "incident_transition"
	AuditActionWorkflowCreated    = "workflow_created"
	AuditActionWorkflowAdvanced   = "workflow_advanced"
	AuditActionWorkflowRolledBack = "workflow_rolled_back"
	AuditActionWorkflowCancelled  = "workflow_cancelled"
)

// AuditLogEntry is an immutable change record with before/after snapshots.
type AuditLogEntry struct {
	ID         string
	OrgID      string
	EntityType string
	EntityID   string
	Action     string
	ActorID    string
	OldValue   map[string]any
	NewValue   map[string]any
	CreatedAt  time.Time
}
