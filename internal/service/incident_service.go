package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/itsm-core/incident-engine/internal/config"
	"github.com/itsm-core/incident-engine/internal/domain"
	"github.com/itsm-core/incident-engine/internal/events"
	"github.com/itsm-core/incident-engine/internal/repository"
	"github.com/itsm-core/incident-engine/internal/sla"
	"github.com/itsm-core/incident-engine/internal/templates"
	apperrors "github.com/itsm-core/incident-engine/pkg/util/errorutil"
)

// CaseTypeIncident selects incident workflow templates.
const CaseTypeIncident = "incident"

const ticketKindIncident = "incident"

// IncidentService owns the incident lifecycle.
type IncidentService struct {
	store     repository.Store
	numbers   repository.TicketNumberGenerator
	registry  *templates.Registry
	workflows *WorkflowService
	gate      transitionGate
	defaults  sla.Policy
	conflicts ConflictPolicy
	events    eventPublisher
	logger    *zap.Logger
	now       Clock
}

// IncidentDependencies bundles collaborators for the incident service.
type IncidentDependencies struct {
	Store         repository.Store
	TicketNumbers repository.TicketNumberGenerator
	Registry      *templates.Registry
	Workflows     *WorkflowService
	Dispatcher    events.Dispatcher
	Logger        *zap.Logger
	Clock         Clock
}

// NewIncidentService constructs the service.
func NewIncidentService(cfg config.Config, deps IncidentDependencies) *IncidentService {
	now := deps.Clock
	if now == nil {
		now = systemClock
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IncidentService{
		store:     deps.Store,
		numbers:   deps.TicketNumbers,
		registry:  deps.Registry,
		workflows: deps.Workflows,
		gate:      transitionGate{directory: deps.Store.Directory()},
		defaults: sla.Policy{
			ResponseMinutes:   cfg.SLA.DefaultResponseMinutes,
			ResolutionMinutes: cfg.SLA.DefaultResolutionMinutes,
		},
		conflicts: ConflictPolicy{MaxRetries: cfg.Concurrency.MaxRetries, Interval: cfg.Concurrency.RetryInterval()},
		events:    eventPublisher{dispatcher: deps.Dispatcher, logger: logger, now: now},
		logger:    logger,
		now:       now,
	}
}

// IncidentCreateInput describes a new incident.
type IncidentCreateInput struct {
	Title       string
	Description string
	Priority    string
	CategoryID  *string
	Channel     string
	ReporterID  *string
	AssigneeID  *string
	TeamID      *string
}

// IncidentUpdateInput holds optional field changes. A non-nil Status is routed
// through the transition gates.
type IncidentUpdateInput struct {
	Title       *string
	Description *string
	Priority    *string
	CategoryID  *string
	AssigneeID  *string
	TeamID      *string
	Status      *TransitionInput
}

// Create stores a new incident with SLA deadlines, then tries to start a matching workflow.
func (s *IncidentService) Create(ctx context.Context, actor Actor, input IncidentCreateInput) (*domain.Incident, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewFieldError("title", "title is required")
	}
	priority := domain.PriorityMedium
	if strings.TrimSpace(input.Priority) != "" {
		p, ok := domain.ParsePriority(input.Priority)
		if !ok {
			return nil, apperrors.NewFieldError("priority", "unknown priority")
		}
		priority = p
	}
	if err := s.gate.validateOwners(ctx, actor.OrgID, input.AssigneeID, input.TeamID); err != nil {
		return nil, err
	}

	policy, err := s.resolvePolicy(ctx, actor.OrgID, priority)
	if err != nil {
		return nil, err
	}
	ticketNumber, err := s.numbers.Next(ctx, actor.OrgID, ticketKindIncident)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	now := s.now()
	deadlines := sla.ComputeDeadlines(now, policy)
	inc := &domain.Incident{
		ID:               uuid.NewString(),
		OrgID:            actor.OrgID,
		TicketNumber:     ticketNumber,
		Title:            title,
		Description:      strings.TrimSpace(input.Description),
		Status:           domain.IncidentStatusNew,
		Priority:         priority,
		CategoryID:       blankToNil(input.CategoryID),
		Channel:          strings.TrimSpace(input.Channel),
		ReporterID:       blankToNil(input.ReporterID),
		AssigneeID:       blankToNil(input.AssigneeID),
		TeamID:           blankToNil(input.TeamID),
		SLAResponseDue:   deadlines.ResponseDue,
		SLAResolutionDue: deadlines.ResolutionDue,
		Version:          1,
		CreatedBy:        actor.ID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	newStatus := inc.Status

	err = s.store.Transaction(ctx, func(ctx context.Context, tx repository.Repositories) error {
		if err := tx.Incidents().Create(ctx, inc); err != nil {
			return err
		}
		if err := tx.Timeline().Append(ctx, &domain.TimelineEntry{
			ID:         uuid.NewString(),
			OrgID:      inc.OrgID,
			IncidentID: inc.ID,
			Action:     domain.TimelineActionCreated,
			NewStatus:  &newStatus,
			ActorID:    actor.ID,
			Metadata:   map[string]any{"ticketNumber": inc.TicketNumber, "priority": inc.Priority},
			CreatedAt:  now,
		}); err != nil {
			return err
		}
		return tx.AuditLog().Append(ctx, &domain.AuditLogEntry{
			ID:         uuid.NewString(),
			OrgID:      inc.OrgID,
			EntityType: domain.AuditEntityIncident,
			EntityID:   inc.ID,
			Action:     domain.AuditActionIncidentCreated,
			ActorID:    actor.ID,
			NewValue:   ownershipSnapshot(inc),
			CreatedAt:  now,
		})
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	s.events.publish(ctx, events.Event{
		Type:     events.EventIncidentCreated,
		OrgID:    inc.OrgID,
		EntityID: inc.ID,
		ActorID:  actor.ID,
		Payload: events.IncidentCreatedPayload{
			TicketNumber: inc.TicketNumber,
			Priority:     inc.Priority,
			Title:        inc.Title,
			AssigneeID:   inc.AssigneeID,
			TeamID:       inc.TeamID,
		},
	})

	s.startWorkflow(ctx, actor, inc)
	return inc, nil
}

// startWorkflow auto-selects a template for the incident. Failures never fail incident creation.
func (s *IncidentService) startWorkflow(ctx context.Context, actor Actor, inc *domain.Incident) {
	if s.registry == nil || s.workflows == nil {
		return
	}
	tpl, ok := s.registry.Select(templates.Criteria{
		CaseType:   CaseTypeIncident,
		Priority:   inc.Priority,
		Channel:    inc.Channel,
		CategoryID: derefString(inc.CategoryID),
	})
	if !ok {
		s.logger.Info("no workflow template matched incident",
			zap.String("incident_id", inc.ID),
			zap.String("priority", string(inc.Priority)))
		return
	}

	incidentID := inc.ID
	_, _, err := s.workflows.CreateFromTemplate(ctx, actor, CreateFromTemplateInput{
		TemplateID:      tpl.ID,
		EntityType:      domain.AuditEntityIncident,
		EntityID:        inc.ID,
		IncidentID:      &incidentID,
		Context:         incidentContext(inc),
		AutoCreateTasks: true,
	})
	if err != nil {
		s.logger.Warn("auto workflow creation failed",
			zap.String("incident_id", inc.ID),
			zap.String("template_id", tpl.ID),
			zap.Error(err))
	}
}

func incidentContext(inc *domain.Incident) map[string]any {
	values := map[string]any{
		"incident": map[string]any{
			"id":           inc.ID,
			"ticketNumber": inc.TicketNumber,
			"title":        inc.Title,
			"description":  inc.Description,
			"priority":     string(inc.Priority),
			"channel":      inc.Channel,
			"categoryId":   derefString(inc.CategoryID),
		},
		"priority": string(inc.Priority),
	}
	if inc.AssigneeID != nil {
		values[domain.ContextKeyAssigneeID] = *inc.AssigneeID
	}
	return values
}

func (s *IncidentService) resolvePolicy(ctx context.Context, orgID string, priority domain.Priority) (sla.Policy, error) {
	policy, err := s.store.SLAPolicies().FindActive(ctx, orgID, priority)
	if err != nil {
		return sla.Policy{}, apperrors.MapError(err)
	}
	if policy == nil {
		return s.defaults, nil
	}
	return sla.Policy{ResponseMinutes: policy.ResponseMinutes, ResolutionMinutes: policy.ResolutionMinutes}, nil
}

// Get returns an incident.
func (s *IncidentService) Get(ctx context.Context, actor Actor, id string) (*domain.Incident, error) {
	inc, err := s.store.Incidents().GetByID(ctx, actor.OrgID, id)
	if err != nil {
		return nil, apperrors.MapError(notFoundOr(err, "incident", id))
	}
	return inc, nil
}

// Timeline lists the incident's timeline entries in order.
func (s *IncidentService) Timeline(ctx context.Context, actor Actor, id string) ([]domain.TimelineEntry, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	entries, err := s.store.Timeline().ListByIncident(ctx, actor.OrgID, id)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return entries, nil
}

// Transition moves the incident to a new status. Transitioning to the current status is a no-op.
func (s *IncidentService) Transition(ctx context.Context, actor Actor, id string, input TransitionInput) (*domain.Incident, error) {
	target, ok := domain.NormalizeIncidentStatus(input.Status)
	if !ok {
		return nil, apperrors.NewFieldError("status", "unknown incident status")
	}

	var (
		result   *domain.Incident
		previous domain.IncidentStatus
		changed  bool
	)
	err := withConflictRetry(ctx, s.conflicts, func(ctx context.Context) error {
		changed = false
		return s.store.Transaction(ctx, func(ctx context.Context, tx repository.Repositories) error {
			inc, err := tx.Incidents().GetByID(ctx, actor.OrgID, id)
			if err != nil {
				return notFoundOr(err, "incident", id)
			}
			if inc.Status == target {
				result = inc
				return nil
			}

			gateMeta, err := s.gate.check(ctx, tx.Tasks(), inc, target, input)
			if err != nil {
				return err
			}
			prev := inc.Status
			if err := s.applyTransition(ctx, tx, actor, inc, target, input, gateMeta); err != nil {
				return err
			}
			result = inc
			previous = prev
			changed = true
			return nil
		})
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	if changed {
		s.publishStatusChanged(ctx, actor, result, previous)
	}
	return result, nil
}

// applyTransition writes a transition that already passed the gate check inside tx.
func (s *IncidentService) applyTransition(ctx context.Context, tx repository.Repositories, actor Actor, inc *domain.Incident, target domain.IncidentStatus, input TransitionInput, gateMeta map[string]any) error {
	before := inc.Clone()
	now := s.now()
	paused := s.gate.apply(inc, target, input, now)
	if err := tx.Incidents().Update(ctx, inc, before.Version); err != nil {
		return err
	}

	metadata := domain.CloneMap(input.Metadata)
	if metadata == nil {
		metadata = map[string]any{}
	}
	for k, v := range gateMeta {
		metadata[k] = v
	}
	if paused > 0 {
		metadata["pausedMinutes"] = paused
	}
	prev := before.Status
	next := inc.Status
	if err := tx.Timeline().Append(ctx, &domain.TimelineEntry{
		ID:             uuid.NewString(),
		OrgID:          inc.OrgID,
		IncidentID:     inc.ID,
		Action:         domain.TimelineActionStrictTransition,
		PreviousStatus: &prev,
		NewStatus:      &next,
		ActorID:        actor.ID,
		Metadata:       metadata,
		CreatedAt:      now,
	}); err != nil {
		return err
	}
	return tx.AuditLog().Append(ctx, &domain.AuditLogEntry{
		ID:         uuid.NewString(),
		OrgID:      inc.OrgID,
		EntityType: domain.AuditEntityIncident,
		EntityID:   inc.ID,
		Action:     domain.AuditActionIncidentTransition,
		ActorID:    actor.ID,
		OldValue:   ownershipSnapshot(before),
		NewValue:   ownershipSnapshot(inc),
		CreatedAt:  now,
	})
}

func (s *IncidentService) publishStatusChanged(ctx context.Context, actor Actor, inc *domain.Incident, previous domain.IncidentStatus) {
	s.events.publish(ctx, events.Event{
		Type:     events.EventIncidentStatusChanged,
		OrgID:    inc.OrgID,
		EntityID: inc.ID,
		ActorID:  actor.ID,
		Payload: events.IncidentStatusChangedPayload{
			TicketNumber: inc.TicketNumber,
			OldStatus:    previous,
			NewStatus:    inc.Status,
			AssigneeID:   inc.AssigneeID,
		},
	})
}

// Update changes descriptive and ownership fields. A requested status change goes through
// the same gates as Transition and commits together with the field changes, or not at all.
func (s *IncidentService) Update(ctx context.Context, actor Actor, id string, input IncidentUpdateInput) (*domain.Incident, error) {
	var priority *domain.Priority
	if input.Priority != nil {
		p, ok := domain.ParsePriority(*input.Priority)
		if !ok {
			return nil, apperrors.NewFieldError("priority", "unknown priority")
		}
		priority = &p
	}
	if input.Title != nil && strings.TrimSpace(*input.Title) == "" {
		return nil, apperrors.NewFieldError("title", "title cannot be empty")
	}
	var target domain.IncidentStatus
	if input.Status != nil {
		t, ok := domain.NormalizeIncidentStatus(input.Status.Status)
		if !ok {
			return nil, apperrors.NewFieldError("status", "unknown incident status")
		}
		target = t
	}
	if err := s.gate.validateOwners(ctx, actor.OrgID, input.AssigneeID, input.TeamID); err != nil {
		return nil, err
	}

	var (
		result        *domain.Incident
		changed       []string
		previous      domain.IncidentStatus
		statusChanged bool
	)
	err := withConflictRetry(ctx, s.conflicts, func(ctx context.Context) error {
		changed = nil
		statusChanged = false
		return s.store.Transaction(ctx, func(ctx context.Context, tx repository.Repositories) error {
			inc, err := tx.Incidents().GetByID(ctx, actor.OrgID, id)
			if err != nil {
				return notFoundOr(err, "incident", id)
			}
			before := inc.Clone()

			if input.Title != nil && strings.TrimSpace(*input.Title) != inc.Title {
				inc.Title = strings.TrimSpace(*input.Title)
				changed = append(changed, "title")
			}
			if input.Description != nil && strings.TrimSpace(*input.Description) != inc.Description {
				inc.Description = strings.TrimSpace(*input.Description)
				changed = append(changed, "description")
			}
			if priority != nil && *priority != inc.Priority {
				inc.Priority = *priority
				changed = append(changed, "priority")
			}
			if input.CategoryID != nil && derefString(input.CategoryID) != derefString(inc.CategoryID) {
				inc.CategoryID = blankToNil(input.CategoryID)
				changed = append(changed, "categoryId")
			}
			if input.AssigneeID != nil && derefString(input.AssigneeID) != derefString(inc.AssigneeID) {
				inc.AssigneeID = blankToNil(input.AssigneeID)
				changed = append(changed, "assigneeId")
			}
			if input.TeamID != nil && derefString(input.TeamID) != derefString(inc.TeamID) {
				inc.TeamID = blankToNil(input.TeamID)
				changed = append(changed, "teamId")
			}
			if inc.Status.IsActive() && !inc.HasOwner() {
				return apperrors.NewValidationError("an active incident needs an assignee or team", map[string]any{"field": "assigneeId"})
			}

			transition := input.Status != nil && target != inc.Status
			var gateMeta map[string]any
			if transition {
				gateMeta, err = s.gate.check(ctx, tx.Tasks(), inc, target, *input.Status)
				if err != nil {
					return err
				}
			}

			if len(changed) > 0 {
				if err := s.writeFieldChanges(ctx, tx, actor, before, inc, changed); err != nil {
					return err
				}
			}
			if transition {
				previous = inc.Status
				if err := s.applyTransition(ctx, tx, actor, inc, target, *input.Status, gateMeta); err != nil {
					return err
				}
				statusChanged = true
			}
			result = inc
			return nil
		})
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	if len(changed) > 0 {
		s.events.publish(ctx, events.Event{
			Type:     events.EventIncidentUpdated,
			OrgID:    result.OrgID,
			EntityID: result.ID,
			ActorID:  actor.ID,
			Payload:  events.IncidentUpdatedPayload{Changed: changed},
		})
	}
	if statusChanged {
		s.publishStatusChanged(ctx, actor, result, previous)
	}
	return result, nil
}

func (s *IncidentService) writeFieldChanges(ctx context.Context, tx repository.Repositories, actor Actor, before, inc *domain.Incident, changed []string) error {
	now := s.now()
	inc.UpdatedAt = now
	if err := tx.Incidents().Update(ctx, inc, before.Version); err != nil {
		return err
	}
	if err := tx.Timeline().Append(ctx, &domain.TimelineEntry{
		ID:         uuid.NewString(),
		OrgID:      inc.OrgID,
		IncidentID: inc.ID,
		Action:     domain.TimelineActionUpdated,
		ActorID:    actor.ID,
		Metadata:   map[string]any{"changed": append([]string(nil), changed...)},
		CreatedAt:  now,
	}); err != nil {
		return err
	}
	return tx.AuditLog().Append(ctx, &domain.AuditLogEntry{
		ID:         uuid.NewString(),
		OrgID:      inc.OrgID,
		EntityType: domain.AuditEntityIncident,
		EntityID:   inc.ID,
		Action:     domain.AuditActionIncidentUpdated,
		ActorID:    actor.ID,
		OldValue:   ownershipSnapshot(before),
		NewValue:   ownershipSnapshot(inc),
		CreatedAt:  now,
	})
}

func blankToNil(v *string) *string {
	if !nonEmpty(v) {
		return nil
	}
	return strPtr(strings.TrimSpace(*v))
}
