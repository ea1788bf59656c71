package domain

import (
	"strings"
	"time"
)

// IncidentStatus enumerates lifecycle states for incidents.
type IncidentStatus string

const (
	IncidentStatusNew        IncidentStatus = "new"
	IncidentStatusAssigned   IncidentStatus = "assigned"
	IncidentStatusInProgress IncidentStatus = "in_progress"
	IncidentStatusPending    IncidentStatus = "pending"
	IncidentStatusEscalated  IncidentStatus = "escalated"
	IncidentStatusResolved   IncidentStatus = "resolved"
	IncidentStatusClosed     IncidentStatus = "closed"
	IncidentStatusCancelled  IncidentStatus = "cancelled"
)

// legacyStatusOpen is accepted on input and treated as assigned.
const legacyStatusOpen = "open"

// IncidentStatuses lists every canonical status.
var IncidentStatuses = []IncidentStatus{
	IncidentStatusNew,
	IncidentStatusAssigned,
	IncidentStatusInProgress,
	IncidentStatusPending,
	IncidentStatusEscalated,
	IncidentStatusResolved,
	IncidentStatusClosed,
	IncidentStatusCancelled,
}

// NormalizeIncidentStatus maps raw input onto a canonical status.
func NormalizeIncidentStatus(raw string) (IncidentStatus, bool) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == legacyStatusOpen {
		return IncidentStatusAssigned, true
	}
	for _, status := range IncidentStatuses {
		if string(status) == value {
			return status, true
		}
	}
	return "", false
}

// IsActive reports whether the status counts as active engagement for response SLA.
func (s IncidentStatus) IsActive() bool {
	switch s {
	case IncidentStatusAssigned, IncidentStatusInProgress, IncidentStatusEscalated:
		return true
	}
	return false
}

// IsTerminal reports whether no transition can leave the status.
func (s IncidentStatus) IsTerminal() bool {
	return s == IncidentStatusClosed || s == IncidentStatusCancelled
}

// Priority enumerates urgency for incidents and tasks.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// ParsePriority normalizes a priority string.
func ParsePriority(raw string) (Priority, bool) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(raw))); p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return p, true
	}
	return "", false
}

// Incident is the aggregate for service disruptions.
type Incident struct {
	ID           string
	OrgID        string
	TicketNumber string
	Title        string
	Description  string
	Status       IncidentStatus
	Priority     Priority
	CategoryID   *string
	Channel      string
	ReporterID   *string
	AssigneeID   *string
	TeamID       *string

	SLAResponseDue     *time.Time
	SLAResponseAt      *time.Time
	SLAResponseMet     *bool
	SLAResolutionDue   *time.Time
	SLAResolutionMet   *bool
	SLAPausedAt        *time.Time
	SLATotalPausedMins int

	OnHoldReason      *string
	OnHoldUntil       *time.Time
	ResolutionSummary *string
	ClosureCode       *string
	ResolvedAt        *time.Time
	ClosedAt          *time.Time

	Version   int
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasOwner reports whether an assignee or team is set.
func (i *Incident) HasOwner() bool {
	return (i.AssigneeID != nil && *i.AssigneeID != "") || (i.TeamID != nil && *i.TeamID != "")
}

// Clone returns a deep copy safe to mutate independently.
func (i *Incident) Clone() *Incident {
	if i == nil {
		return nil
	}
	c := *i
	c.CategoryID = cloneString(i.CategoryID)
	c.ReporterID = cloneString(i.ReporterID)
	c.AssigneeID = cloneString(i.AssigneeID)
	c.TeamID = cloneString(i.TeamID)
	c.SLAResponseDue = cloneTime(i.SLAResponseDue)
	c.SLAResponseAt = cloneTime(i.SLAResponseAt)
	c.SLAResponseMet = cloneBool(i.SLAResponseMet)
	c.SLAResolutionDue = cloneTime(i.SLAResolutionDue)
	c.SLAResolutionMet = cloneBool(i.SLAResolutionMet)
	c.SLAPausedAt = cloneTime(i.SLAPausedAt)
	c.OnHoldReason = cloneString(i.OnHoldReason)
	c.OnHoldUntil = cloneTime(i.OnHoldUntil)
	c.ResolutionSummary = cloneString(i.ResolutionSummary)
	c.ClosureCode = cloneString(i.ClosureCode)
	c.ResolvedAt = cloneTime(i.ResolvedAt)
	c.ClosedAt = cloneTime(i.ClosedAt)
	return &c
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneBool(v *bool) *bool {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
