package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/itsm-core/incident-engine/internal/config"
	"github.com/itsm-core/incident-engine/internal/domain"
	"github.com/itsm-core/incident-engine/internal/events"
	"github.com/itsm-core/incident-engine/internal/repository"
	"github.com/itsm-core/incident-engine/internal/templates"
	apperrors "github.com/itsm-core/incident-engine/pkg/util/errorutil"
)

// WorkflowService creates workflows and drives their steps.
type WorkflowService struct {
	store     repository.Store
	registry  *templates.Registry
	generator *TaskGenerator
	conflicts ConflictPolicy
	events    eventPublisher
	logger    *zap.Logger
	now       Clock
}

// WorkflowDependencies bundles collaborators for the workflow service.
type WorkflowDependencies struct {
	Store      repository.Store
	Registry   *templates.Registry
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Clock      Clock
}

// NewWorkflowService constructs the service.
func NewWorkflowService(cfg config.Config, deps WorkflowDependencies) *WorkflowService {
	now := deps.Clock
	if now == nil {
		now = systemClock
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowService{
		store:     deps.Store,
		registry:  deps.Registry,
		generator: NewTaskGenerator(deps.Store.Directory()),
		conflicts: ConflictPolicy{MaxRetries: cfg.Concurrency.MaxRetries, Interval: cfg.Concurrency.RetryInterval()},
		events:    eventPublisher{dispatcher: deps.Dispatcher, logger: logger, now: now},
		logger:    logger,
		now:       now,
	}
}

// WorkflowCreateInput describes a workflow built from an explicit step list.
type WorkflowCreateInput struct {
	Name       string
	Type       string
	EntityType string
	EntityID   string
	IncidentID *string
	Steps      []domain.WorkflowStep
	Context    map[string]any
}

// CreateFromTemplateInput describes a workflow instantiated from the registry.
type CreateFromTemplateInput struct {
	TemplateID      string
	Name            string
	EntityType      string
	EntityID        string
	IncidentID      *string
	Context         map[string]any
	AutoCreateTasks bool
}

// AdvanceInput is the operator decision on the current step.
type AdvanceInput struct {
	Action     string
	Data       map[string]any
	NextStepID *string
}

// Templates lists the active templates.
func (s *WorkflowService) Templates() []domain.WorkflowTemplate {
	if s.registry == nil {
		return nil
	}
	return s.registry.List()
}

// Create validates the steps and stores a workflow with its first step active.
func (s *WorkflowService) Create(ctx context.Context, actor Actor, input WorkflowCreateInput) (*domain.Workflow, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewFieldError("name", "name is required")
	}
	steps := make([]domain.WorkflowStep, len(input.Steps))
	for i, step := range input.Steps {
		step.Config = domain.CloneMap(step.Config)
		step.NextSteps = append([]string(nil), step.NextSteps...)
		steps[i] = step
	}
	wf, err := s.newWorkflow(actor, name, input.Type, input.EntityType, input.EntityID, input.IncidentID, steps, input.Context)
	if err != nil {
		return nil, err
	}

	err = s.store.Transaction(ctx, func(ctx context.Context, tx repository.Repositories) error {
		return s.persistNew(ctx, tx, actor, wf, 0)
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishCreated(ctx, actor, wf, 0)
	return wf, nil
}

// CreateFromTemplate instantiates a template. With AutoCreateTasks the workflow and its
// correlated tasks are written in one transaction; if task generation fails nothing is kept.
func (s *WorkflowService) CreateFromTemplate(ctx context.Context, actor Actor, input CreateFromTemplateInput) (*domain.Workflow, []*domain.Task, error) {
	if s.registry == nil {
		return nil, nil, apperrors.NewFieldError("templateId", "no template registry configured")
	}
	tpl, ok := s.registry.Get(input.TemplateID)
	if !ok {
		return nil, nil, apperrors.NewValidationError("unknown workflow template", map[string]any{
			"field":       "templateId",
			"template_id": input.TemplateID,
		})
	}

	values := domain.CloneMap(tpl.DefaultContext)
	if values == nil {
		values = map[string]any{}
	}
	for k, v := range input.Context {
		values[k] = v
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = tpl.Name
	}
	wf, err := s.newWorkflow(actor, name, tpl.Type, input.EntityType, input.EntityID, input.IncidentID, tpl.InstantiateSteps(), values)
	if err != nil {
		return nil, nil, err
	}
	wf.TemplateID = strPtr(tpl.ID)

	var tasks []*domain.Task
	err = s.store.Transaction(ctx, func(ctx context.Context, tx repository.Repositories) error {
		tasks = nil
		if input.AutoCreateTasks {
			generated, err := s.generator.Generate(ctx, tpl, wf, actor.ID, wf.CreatedAt)
			if err != nil {
				return err
			}
			tasks = generated
		}
		if err := s.persistNew(ctx, tx, actor, wf, len(tasks)); err != nil {
			return err
		}
		return tx.Tasks().CreateMany(ctx, tasks)
	})
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	s.publishCreated(ctx, actor, wf, len(tasks))
	return wf, tasks, nil
}

func (s *WorkflowService) newWorkflow(actor Actor, name, wfType, entityType, entityID string, incidentID *string, steps []domain.WorkflowStep, values map[string]any) (*domain.Workflow, error) {
	entityType = strings.TrimSpace(entityType)
	entityID = strings.TrimSpace(entityID)
	if incidentID != nil && entityID == "" {
		entityType, entityID = domain.AuditEntityIncident, *incidentID
	}
	if entityType == "" || entityID == "" {
		return nil, apperrors.NewFieldError("entityId", "entity type and id are required")
	}
	// A workflow attached to an incident entity is correlated with it so its tasks gate resolve.
	if entityType == domain.AuditEntityIncident && !nonEmpty(incidentID) {
		incidentID = &entityID
	}
	if err := validateSteps(steps); err != nil {
		return nil, err
	}
	now := s.now()
	wf := &domain.Workflow{
		ID:         uuid.NewString(),
		OrgID:      actor.OrgID,
		Name:       name,
		Type:       strings.TrimSpace(wfType),
		EntityType: entityType,
		EntityID:   entityID,
		IncidentID: blankToNil(incidentID),
		Status:     domain.WorkflowStatusPending,
		Steps:      steps,
		Context:    domain.NewWorkflowContext(values),
		Version:    1,
		CreatedBy:  actor.ID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	startWorkflow(wf)
	return wf, nil
}

func (s *WorkflowService) persistNew(ctx context.Context, tx repository.Repositories, actor Actor, wf *domain.Workflow, taskCount int) error {
	if wf.IncidentID != nil {
		if _, err := tx.Incidents().GetByID(ctx, wf.OrgID, *wf.IncidentID); err != nil {
			return notFoundOr(err, "incident", *wf.IncidentID)
		}
	}
	if err := tx.Workflows().Create(ctx, wf); err != nil {
		return err
	}
	return tx.AuditLog().Append(ctx, &domain.AuditLogEntry{
		ID:         uuid.NewString(),
		OrgID:      wf.OrgID,
		EntityType: domain.AuditEntityWorkflow,
		EntityID:   wf.ID,
		Action:     domain.AuditActionWorkflowCreated,
		ActorID:    actor.ID,
		NewValue: map[string]any{
			"stepId":     derefString(wf.CurrentStepID),
			"status":     wf.Status,
			"templateId": derefString(wf.TemplateID),
			"taskCount":  taskCount,
		},
		CreatedAt: wf.CreatedAt,
	})
}

func (s *WorkflowService) publishCreated(ctx context.Context, actor Actor, wf *domain.Workflow, taskCount int) {
	s.events.publish(ctx, events.Event{
		Type:     events.EventWorkflowCreated,
		OrgID:    wf.OrgID,
		EntityID: wf.ID,
		ActorID:  actor.ID,
		Payload: events.WorkflowCreatedPayload{
			TemplateID: wf.TemplateID,
			IncidentID: wf.IncidentID,
			TaskCount:  taskCount,
		},
	})
}

// Get returns a workflow.
func (s *WorkflowService) Get(ctx context.Context, actor Actor, id string) (*domain.Workflow, error) {
	wf, err := s.store.Workflows().GetByID(ctx, actor.OrgID, id)
	if err != nil {
		return nil, apperrors.MapError(notFoundOr(err, "workflow", id))
	}
	return wf, nil
}

// Tasks lists the tasks generated for a workflow.
func (s *WorkflowService) Tasks(ctx context.Context, actor Actor, id string) ([]domain.Task, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	tasks, err := s.store.Tasks().List(ctx, repository.TaskFilter{OrgID: actor.OrgID, WorkflowID: &id})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tasks, nil
}

// Advance applies an action to the current step.
func (s *WorkflowService) Advance(ctx context.Context, actor Actor, id string, input AdvanceInput) (*domain.Workflow, error) {
	action, ok := domain.ParseStepAction(input.Action)
	if !ok {
		return nil, apperrors.NewFieldError("action", "unknown step action")
	}
	return s.mutate(ctx, actor, id, domain.AuditActionWorkflowAdvanced, events.EventWorkflowAdvanced, action, "",
		func(wf *domain.Workflow, now time.Time) (stepMove, error) {
			return advanceWorkflow(wf, action, input.Data, input.NextStepID, actor.ID, now)
		})
}

// Rollback truncates the workflow back to targetStepID.
func (s *WorkflowService) Rollback(ctx context.Context, actor Actor, id, targetStepID, reason string) (*domain.Workflow, error) {
	targetStepID = strings.TrimSpace(targetStepID)
	if targetStepID == "" {
		return nil, apperrors.NewFieldError("targetStepId", "target step is required")
	}
	reason = strings.TrimSpace(reason)
	return s.mutate(ctx, actor, id, domain.AuditActionWorkflowRolledBack, events.EventWorkflowRolledBack, "", reason,
		func(wf *domain.Workflow, now time.Time) (stepMove, error) {
			return rollbackWorkflow(wf, targetStepID, reason, actor.ID, now)
		})
}

// Cancel stops a workflow that has not completed.
func (s *WorkflowService) Cancel(ctx context.Context, actor Actor, id, reason string) (*domain.Workflow, error) {
	reason = strings.TrimSpace(reason)
	return s.mutate(ctx, actor, id, domain.AuditActionWorkflowCancelled, events.EventWorkflowCancelled, "", reason,
		func(wf *domain.Workflow, now time.Time) (stepMove, error) {
			return cancelWorkflow(wf, reason, actor.ID, now)
		})
}

type workflowMutation func(wf *domain.Workflow, now time.Time) (stepMove, error)

// mutate runs a read-modify-write on a workflow with one audit entry, retrying on version conflicts.
func (s *WorkflowService) mutate(ctx context.Context, actor Actor, id, auditAction string, eventType events.EventType, action domain.StepAction, reason string, fn workflowMutation) (*domain.Workflow, error) {
	var (
		result *domain.Workflow
		move   stepMove
	)
	err := withConflictRetry(ctx, s.conflicts, func(ctx context.Context) error {
		return s.store.Transaction(ctx, func(ctx context.Context, tx repository.Repositories) error {
			wf, err := tx.Workflows().GetByID(ctx, actor.OrgID, id)
			if err != nil {
				return notFoundOr(err, "workflow", id)
			}
			expected := wf.Version
			now := s.now()
			m, err := fn(wf, now)
			if err != nil {
				return err
			}
			if err := tx.Workflows().Update(ctx, wf, expected); err != nil {
				return err
			}
			newValue := m.newValue()
			if action != "" {
				newValue["action"] = action
			}
			if reason != "" {
				newValue["reason"] = reason
			}
			if err := tx.AuditLog().Append(ctx, &domain.AuditLogEntry{
				ID:         uuid.NewString(),
				OrgID:      wf.OrgID,
				EntityType: domain.AuditEntityWorkflow,
				EntityID:   wf.ID,
				Action:     auditAction,
				ActorID:    actor.ID,
				OldValue:   m.oldValue(),
				NewValue:   newValue,
				CreatedAt:  now,
			}); err != nil {
				return err
			}
			result = wf
			move = m
			return nil
		})
	})
	if err != nil {
		if apperrors.IsKind(err, apperrors.CodeCorruptState) {
			s.logger.Error("workflow state is corrupt",
				zap.String("workflow_id", id),
				zap.String("org_id", actor.OrgID),
				zap.Error(err))
		}
		return nil, apperrors.MapError(err)
	}

	s.events.publish(ctx, events.Event{
		Type:     eventType,
		OrgID:    result.OrgID,
		EntityID: result.ID,
		ActorID:  actor.ID,
		Payload: events.WorkflowStepPayload{
			PreviousStepID: move.PreviousStepID,
			CurrentStepID:  move.CurrentStepID,
			Action:         action,
			Status:         result.Status,
			Reason:         reason,
		},
	})
	return result, nil
}
