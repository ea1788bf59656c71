package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/itsm-core/incident-engine/internal/api/dto"
	"github.com/itsm-core/incident-engine/internal/domain"
	"github.com/itsm-core/incident-engine/internal/service"
)

// WorkflowsHandler exposes workflow engine endpoints.
type WorkflowsHandler struct {
	workflows *service.WorkflowService
	analytics *service.AnalyticsService
}

// NewWorkflowsHandler constructs handler.
func NewWorkflowsHandler(workflows *service.WorkflowService, analytics *service.AnalyticsService) *WorkflowsHandler {
	return &WorkflowsHandler{workflows: workflows, analytics: analytics}
}

// Templates GET /workflow-templates.
func (h *WorkflowsHandler) Templates(c *fiber.Ctx) error {
	items := h.workflows.Templates()
	if items == nil {
		items = []domain.WorkflowTemplate{}
	}
	return c.JSON(fiber.Map{"data": items})
}

// Create POST /workflows.
func (h *WorkflowsHandler) Create(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.CreateWorkflowRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	steps := make([]domain.WorkflowStep, 0, len(req.Steps))
	for _, s := range req.Steps {
		steps = append(steps, domain.WorkflowStep{
			ID:        s.ID,
			Name:      s.Name,
			Type:      domain.StepType(s.Type),
			Assignee:  s.Assignee,
			Config:    s.Config,
			NextSteps: s.NextSteps,
		})
	}
	wf, err := h.workflows.Create(c.UserContext(), actor, service.WorkflowCreateInput{
		Name:       req.Name,
		Type:       req.Type,
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		IncidentID: req.IncidentID,
		Steps:      steps,
		Context:    req.Context,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewWorkflowResponse(wf)})
}

// CreateFromTemplate POST /workflows/from-template.
func (h *WorkflowsHandler) CreateFromTemplate(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.CreateFromTemplateRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	wf, tasks, err := h.workflows.CreateFromTemplate(c.UserContext(), actor, service.CreateFromTemplateInput{
		TemplateID:      req.TemplateID,
		Name:            req.Name,
		EntityType:      req.EntityType,
		EntityID:        req.EntityID,
		IncidentID:      req.IncidentID,
		Context:         req.Context,
		AutoCreateTasks: req.AutoCreateTasks,
	})
	if err != nil {
		return err
	}
	resp := dto.WorkflowWithTasksResponse{
		Workflow: dto.NewWorkflowResponse(wf),
		Tasks:    make([]dto.TaskResponse, 0, len(tasks)),
	}
	for _, t := range tasks {
		resp.Tasks = append(resp.Tasks, dto.NewTaskResponse(t))
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": resp})
}

// Get GET /workflows/:id.
func (h *WorkflowsHandler) Get(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	wf, err := h.workflows.Get(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewWorkflowResponse(wf)})
}

// Tasks GET /workflows/:id/tasks.
func (h *WorkflowsHandler) Tasks(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	tasks, err := h.workflows.Tasks(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.TaskResponse, 0, len(tasks))
	for i := range tasks {
		items = append(items, dto.NewTaskResponse(&tasks[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Advance POST /workflows/:id/advance.
func (h *WorkflowsHandler) Advance(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.AdvanceRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	wf, err := h.workflows.Advance(c.UserContext(), actor, c.Params("id"), service.AdvanceInput{
		Action:     req.Action,
		Data:       req.Data,
		NextStepID: req.NextStepID,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewWorkflowResponse(wf)})
}

// Rollback POST /workflows/:id/rollback.
func (h *WorkflowsHandler) Rollback(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.RollbackRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	wf, err := h.workflows.Rollback(c.UserContext(), actor, c.Params("id"), req.TargetStepID, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewWorkflowResponse(wf)})
}

// Cancel POST /workflows/:id/cancel.
func (h *WorkflowsHandler) Cancel(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.CancelRequest
	if len(c.Body()) > 0 {
		if err := bindJSON(c, &req); err != nil {
			return err
		}
	}
	wf, err := h.workflows.Cancel(c.UserContext(), actor, c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewWorkflowResponse(wf)})
}

// ExceptionAnalytics GET /workflows/analytics/exceptions.
func (h *WorkflowsHandler) ExceptionAnalytics(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	summary, err := h.analytics.ExceptionSummary(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": summary})
}
