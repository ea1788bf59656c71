package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/qmuntal/stateless"

	"github.com/itsm-core/incident-engine/internal/domain"
	"github.com/itsm-core/incident-engine/internal/repository"
	"github.com/itsm-core/incident-engine/internal/sla"
	apperrors "github.com/itsm-core/incident-engine/pkg/util/errorutil"
)

var allowedTransitions = map[domain.IncidentStatus][]domain.IncidentStatus{
	domain.IncidentStatusNew: {
		domain.IncidentStatusAssigned, domain.IncidentStatusInProgress,
		domain.IncidentStatusCancelled, domain.IncidentStatusEscalated,
	},
	domain.IncidentStatusAssigned: {
		domain.IncidentStatusInProgress, domain.IncidentStatusPending, domain.IncidentStatusResolved,
		domain.IncidentStatusCancelled, domain.IncidentStatusEscalated,
	},
	domain.IncidentStatusInProgress: {
		domain.IncidentStatusPending, domain.IncidentStatusResolved,
		domain.IncidentStatusCancelled, domain.IncidentStatusEscalated,
	},
	domain.IncidentStatusPending: {
		domain.IncidentStatusInProgress, domain.IncidentStatusResolved,
		domain.IncidentStatusCancelled, domain.IncidentStatusEscalated,
	},
	domain.IncidentStatusEscalated: {
		domain.IncidentStatusAssigned, domain.IncidentStatusInProgress, domain.IncidentStatusPending,
		domain.IncidentStatusResolved, domain.IncidentStatusCancelled,
	},
	domain.IncidentStatusResolved:  {domain.IncidentStatusClosed, domain.IncidentStatusInProgress},
	domain.IncidentStatusClosed:    {},
	domain.IncidentStatusCancelled: {},
}

type incidentStatusKey struct{}

// incidentStateMachine is configured once with the target status as trigger. The state is
// read from the context, so a single machine serves concurrent checks and never fires.
var incidentStateMachine = newIncidentStateMachine()

func newIncidentStateMachine() *stateless.StateMachine {
	sm := stateless.NewStateMachineWithExternalStorage(
		func(ctx context.Context) (stateless.State, error) {
			status, ok := ctx.Value(incidentStatusKey{}).(domain.IncidentStatus)
			if !ok {
				return nil, errors.New("incident status missing from context")
			}
			return status, nil
		},
		func(context.Context, stateless.State) error {
			return errors.New("incident state machine is read-only")
		},
		stateless.FiringImmediate,
	)
	for from, targets := range allowedTransitions {
		cfg := sm.Configure(from)
		for _, to := range targets {
			cfg.Permit(to, to)
		}
	}
	return sm
}

func isValidTransition(current, next domain.IncidentStatus) bool {
	ctx := context.WithValue(context.Background(), incidentStatusKey{}, current)
	ok, err := incidentStateMachine.CanFireCtx(ctx, next)
	return err == nil && ok
}

// TransitionInput carries the requested status plus gate fields.
type TransitionInput struct {
	Status            string
	AssigneeID        *string
	TeamID            *string
	PendingReason     string
	PendingUntil      *time.Time
	ResolutionSummary string
	ClosureCode       string
	Reason            string
	Metadata          map[string]any
}

// transitionGate evaluates preconditions and applies side effects of a status change.
type transitionGate struct {
	directory repository.DirectoryRepository
}

// check runs every gate against the snapshot; nothing is mutated. The returned map holds
// the gate fields recorded on the timeline.
func (g transitionGate) check(ctx context.Context, tasks repository.TaskRepository, inc *domain.Incident, target domain.IncidentStatus, input TransitionInput) (map[string]any, error) {
	meta := map[string]any{}

	if err := g.validateOwners(ctx, inc.OrgID, input.AssigneeID, input.TeamID); err != nil {
		return nil, err
	}

	if !isValidTransition(inc.Status, target) {
		return nil, apperrors.NewIllegalTransition("transition not allowed", map[string]any{
			"from": inc.Status,
			"to":   target,
		})
	}

	if target.IsActive() {
		owned := inc.HasOwner() || nonEmpty(input.AssigneeID) || nonEmpty(input.TeamID)
		if !owned {
			return nil, apperrors.NewValidationError("an assignee or team is required", map[string]any{
				"field": "assigneeId",
				"to":    target,
			})
		}
	}
	if nonEmpty(input.AssigneeID) {
		meta["assigneeId"] = *input.AssigneeID
	}
	if nonEmpty(input.TeamID) {
		meta["teamId"] = *input.TeamID
	}

	switch target {
	case domain.IncidentStatusPending:
		reason := strings.TrimSpace(input.PendingReason)
		if reason == "" {
			return nil, apperrors.NewFieldError("pendingReason", "pending reason is required")
		}
		meta["pendingReason"] = reason
		if input.PendingUntil != nil {
			meta["pendingUntil"] = input.PendingUntil.UTC().Format(time.RFC3339)
		}
	case domain.IncidentStatusResolved:
		summary := strings.TrimSpace(input.ResolutionSummary)
		if summary == "" {
			return nil, apperrors.NewFieldError("resolutionSummary", "resolution summary is required")
		}
		incidentID := inc.ID
		open, err := tasks.Count(ctx, repository.TaskFilter{
			OrgID:              inc.OrgID,
			IncidentID:         &incidentID,
			Statuses:           domain.OpenTaskStatuses,
			WorkflowLinkedOnly: true,
		})
		if err != nil {
			return nil, err
		}
		if open > 0 {
			return nil, apperrors.NewIllegalTransition("workflow tasks must be completed before resolving", map[string]any{
				"reason": "open_workflow_tasks",
				"to":     target,
			})
		}
		meta["resolutionSummary"] = summary
	case domain.IncidentStatusClosed:
		if inc.Status != domain.IncidentStatusResolved {
			return nil, apperrors.NewIllegalTransition("only resolved incidents can be closed", map[string]any{
				"from": inc.Status,
				"to":   target,
			})
		}
		code := strings.TrimSpace(input.ClosureCode)
		if code == "" {
			return nil, apperrors.NewFieldError("closureCode", "closure code is required")
		}
		meta["closureCode"] = code
	case domain.IncidentStatusCancelled:
		reason := strings.TrimSpace(input.Reason)
		if reason == "" {
			return nil, apperrors.NewFieldError("reason", "cancellation reason is required")
		}
		meta["reason"] = reason
	}
	return meta, nil
}

func (g transitionGate) validateOwners(ctx context.Context, orgID string, assigneeID, teamID *string) error {
	if nonEmpty(assigneeID) {
		ok, err := g.directory.MemberExists(ctx, orgID, *assigneeID)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.NewNotFound("assignee", map[string]any{"field": "assigneeId", "assignee_id": *assigneeID})
		}
	}
	if nonEmpty(teamID) {
		ok, err := g.directory.TeamExists(ctx, orgID, *teamID)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.NewNotFound("team", map[string]any{"field": "teamId", "team_id": *teamID})
		}
	}
	return nil
}

// apply mutates inc for a transition that already passed check. It returns the paused
// minutes credited when the incident leaves pending.
func (g transitionGate) apply(inc *domain.Incident, target domain.IncidentStatus, input TransitionInput, now time.Time) int {
	from := inc.Status

	if nonEmpty(input.AssigneeID) {
		inc.AssigneeID = strPtr(*input.AssigneeID)
	}
	if nonEmpty(input.TeamID) {
		inc.TeamID = strPtr(*input.TeamID)
	}

	pausedMinutes := 0
	if from == domain.IncidentStatusPending {
		inc.OnHoldReason = nil
		inc.OnHoldUntil = nil
		if inc.SLAPausedAt != nil {
			pausedMinutes = sla.PausedMinutes(*inc.SLAPausedAt, now)
			if inc.SLAResponseAt == nil {
				inc.SLAResponseDue = sla.ExtendDeadline(inc.SLAResponseDue, pausedMinutes)
			}
			if inc.ResolvedAt == nil {
				inc.SLAResolutionDue = sla.ExtendDeadline(inc.SLAResolutionDue, pausedMinutes)
			}
			inc.SLATotalPausedMins += pausedMinutes
			inc.SLAPausedAt = nil
		}
	}

	if target.IsActive() && inc.SLAResponseAt == nil {
		inc.SLAResponseAt = timePtr(now)
		inc.SLAResponseMet = sla.EvaluateMet(now, inc.SLAResponseDue)
	}

	switch target {
	case domain.IncidentStatusPending:
		inc.OnHoldReason = strPtr(strings.TrimSpace(input.PendingReason))
		inc.OnHoldUntil = input.PendingUntil
		if inc.SLAPausedAt == nil {
			inc.SLAPausedAt = timePtr(now)
		}
	case domain.IncidentStatusResolved:
		inc.ResolvedAt = timePtr(now)
		inc.ResolutionSummary = strPtr(strings.TrimSpace(input.ResolutionSummary))
		inc.SLAResolutionMet = sla.EvaluateMet(now, inc.SLAResolutionDue)
	case domain.IncidentStatusInProgress:
		if from == domain.IncidentStatusResolved {
			inc.ResolvedAt = nil
			inc.ClosedAt = nil
			inc.SLAResolutionMet = nil
		}
	case domain.IncidentStatusClosed:
		inc.ClosureCode = strPtr(strings.TrimSpace(input.ClosureCode))
		inc.ClosedAt = timePtr(now)
	case domain.IncidentStatusCancelled:
		inc.ClosedAt = timePtr(now)
	}

	inc.Status = target
	inc.UpdatedAt = now
	return pausedMinutes
}

func ownershipSnapshot(inc *domain.Incident) map[string]any {
	return map[string]any{
		"status":     inc.Status,
		"assigneeId": derefString(inc.AssigneeID),
		"teamId":     derefString(inc.TeamID),
		"priority":   inc.Priority,
	}
}

func nonEmpty(v *string) bool {
	return v != nil && strings.TrimSpace(*v) != ""
}
