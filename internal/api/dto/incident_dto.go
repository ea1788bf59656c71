package dto

import (
	"time"

	"github.com/itsm-core/incident-engine/internal/domain"
)

// CreateIncidentRequest payload.
type CreateIncidentRequest struct {
	Title       string  `json:"title" validate:"required,max=255"`
	Description string  `json:"description" validate:"max=10000"`
	Priority    string  `json:"priority" validate:"required,oneof=critical high medium low"`
	CategoryID  *string `json:"categoryId" validate:"omitempty,max=64"`
	Channel     string  `json:"channel" validate:"max=64"`
	ReporterID  *string `json:"reporterId" validate:"omitempty,uuid"`
	AssigneeID  *string `json:"assigneeId" validate:"omitempty,uuid"`
	TeamID      *string `json:"teamId" validate:"omitempty,uuid"`
}

// TransitionRequest payload for POST /incidents/:id/transitions.
type TransitionRequest struct {
	Status            string         `json:"status" validate:"required"`
	AssigneeID        *string        `json:"assigneeId" validate:"omitempty,uuid"`
	TeamID            *string        `json:"teamId" validate:"omitempty,uuid"`
	PendingReason     string         `json:"pendingReason" validate:"max=1000"`
	PendingUntil      *time.Time     `json:"pendingUntil"`
	ResolutionSummary string         `json:"resolutionSummary" validate:"max=10000"`
	ClosureCode       string         `json:"closureCode" validate:"max=64"`
	Reason            string         `json:"reason" validate:"max=1000"`
	Metadata          map[string]any `json:"metadata"`
}

// UpdateIncidentRequest payload for PATCH /incidents/:id. Omitted fields stay unchanged.
// A bare status is shorthand for a transition without gate fields.
type UpdateIncidentRequest struct {
	Title       *string            `json:"title" validate:"omitempty,max=255"`
	Description *string            `json:"description" validate:"omitempty,max=10000"`
	Priority    *string            `json:"priority" validate:"omitempty,oneof=critical high medium low"`
	CategoryID  *string            `json:"categoryId" validate:"omitempty,max=64"`
	AssigneeID  *string            `json:"assigneeId" validate:"omitempty,uuid"`
	TeamID      *string            `json:"teamId" validate:"omitempty,uuid"`
	Status      *string            `json:"status" validate:"omitempty,min=1"`
	Transition  *TransitionRequest `json:"transition" validate:"omitempty"`
}

// IncidentResponse is the full incident view.
type IncidentResponse struct {
	ID                 string                `json:"id"`
	OrgID              string                `json:"orgId"`
	TicketNumber       string                `json:"ticketNumber"`
	Title              string                `json:"title"`
	Description        string                `json:"description"`
	Status             domain.IncidentStatus `json:"status"`
	Priority           domain.Priority       `json:"priority"`
	CategoryID         *string               `json:"categoryId"`
	Channel            string                `json:"channel"`
	ReporterID         *string               `json:"reporterId"`
	AssigneeID         *string               `json:"assigneeId"`
	TeamID             *string               `json:"teamId"`
	SLAResponseDue     *time.Time            `json:"slaResponseDue"`
	SLAResponseAt      *time.Time            `json:"slaResponseAt"`
	SLAResponseMet     *bool                 `json:"slaResponseMet"`
	SLAResolutionDue   *time.Time            `json:"slaResolutionDue"`
	SLAResolutionMet   *bool                 `json:"slaResolutionMet"`
	SLAPausedAt        *time.Time            `json:"slaPausedAt"`
	SLATotalPausedMins int                   `json:"slaTotalPausedMins"`
	OnHoldReason       *string               `json:"onHoldReason"`
	OnHoldUntil        *time.Time            `json:"onHoldUntil"`
	ResolutionSummary  *string               `json:"resolutionSummary"`
	ClosureCode        *string               `json:"closureCode"`
	ResolvedAt         *time.Time            `json:"resolvedAt"`
	ClosedAt           *time.Time            `json:"closedAt"`
	Version            int                   `json:"version"`
	CreatedBy          string                `json:"createdBy"`
	CreatedAt          time.Time             `json:"createdAt"`
	UpdatedAt          time.Time             `json:"updatedAt"`
}

// NewIncidentResponse maps an incident.
func NewIncidentResponse(inc *domain.Incident) IncidentResponse {
	return IncidentResponse{
		ID:                 inc.ID,
		OrgID:              inc.OrgID,
		TicketNumber:       inc.TicketNumber,
		Title:              inc.Title,
		Description:        inc.Description,
		Status:             inc.Status,
		Priority:           inc.Priority,
		CategoryID:         inc.CategoryID,
		Channel:            inc.Channel,
		ReporterID:         inc.ReporterID,
		AssigneeID:         inc.AssigneeID,
		TeamID:             inc.TeamID,
		SLAResponseDue:     inc.SLAResponseDue,
		SLAResponseAt:      inc.SLAResponseAt,
		SLAResponseMet:     inc.SLAResponseMet,
		SLAResolutionDue:   inc.SLAResolutionDue,
		SLAResolutionMet:   inc.SLAResolutionMet,
		SLAPausedAt:        inc.SLAPausedAt,
		SLATotalPausedMins: inc.SLATotalPausedMins,
		OnHoldReason:       inc.OnHoldReason,
		OnHoldUntil:        inc.OnHoldUntil,
		ResolutionSummary:  inc.ResolutionSummary,
		ClosureCode:        inc.ClosureCode,
		ResolvedAt:         inc.ResolvedAt,
		ClosedAt:           inc.ClosedAt,
		Version:            inc.Version,
		CreatedBy:          inc.CreatedBy,
		CreatedAt:          inc.CreatedAt,
		UpdatedAt:          inc.UpdatedAt,
	}
}

// TimelineEntryResponse is one incident timeline row.
type TimelineEntryResponse struct {
	ID             string                 `json:"id"`
	Action         string                 `json:"action"`
	PreviousStatus *domain.IncidentStatus `json:"previousStatus"`
	NewStatus      *domain.IncidentStatus `json:"newStatus"`
	ActorID        string                 `json:"actorId"`
	Metadata       map[string]any         `json:"metadata,omitempty"`
	CreatedAt      time.Time              `json:"createdAt"`
}

// NewTimelineResponse maps timeline entries.
func NewTimelineResponse(entries []domain.TimelineEntry) []TimelineEntryResponse {
	items := make([]TimelineEntryResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, TimelineEntryResponse{
			ID:             e.ID,
			Action:         e.Action,
			PreviousStatus: e.PreviousStatus,
			NewStatus:      e.NewStatus,
			ActorID:        e.ActorID,
			Metadata:       e.Metadata,
			CreatedAt:      e.CreatedAt,
		})
	}
	return items
}
