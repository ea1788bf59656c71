package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/itsm-core/incident-engine/internal/api/dto"
	"github.com/itsm-core/incident-engine/internal/service"
)

// IncidentsHandler exposes incident lifecycle endpoints.
type IncidentsHandler struct {
	service *service.IncidentService
}

// NewIncidentsHandler constructs handler.
func NewIncidentsHandler(incidentService *service.IncidentService) *IncidentsHandler {
	return &IncidentsHandler{service: incidentService}
}

// Create POST /incidents.
func (h *IncidentsHandler) Create(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.CreateIncidentRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	incident, err := h.service.Create(c.UserContext(), actor, service.IncidentCreateInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		CategoryID:  req.CategoryID,
		Channel:     req.Channel,
		ReporterID:  req.ReporterID,
		AssigneeID:  req.AssigneeID,
		TeamID:      req.TeamID,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewIncidentResponse(incident)})
}

// Get GET /incidents/:id.
func (h *IncidentsHandler) Get(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	incident, err := h.service.Get(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewIncidentResponse(incident)})
}

// Update PATCH /incidents/:id.
func (h *IncidentsHandler) Update(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.UpdateIncidentRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	input := service.IncidentUpdateInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		CategoryID:  req.CategoryID,
		AssigneeID:  req.AssigneeID,
		TeamID:      req.TeamID,
	}
	switch {
	case req.Transition != nil:
		transition := transitionInput(*req.Transition)
		input.Status = &transition
	case req.Status != nil:
		input.Status = &service.TransitionInput{Status: *req.Status}
	}
	incident, err := h.service.Update(c.UserContext(), actor, c.Params("id"), input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewIncidentResponse(incident)})
}

// Transition POST /incidents/:id/transitions.
func (h *IncidentsHandler) Transition(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.TransitionRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	incident, err := h.service.Transition(c.UserContext(), actor, c.Params("id"), transitionInput(req))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewIncidentResponse(incident)})
}

// Timeline GET /incidents/:id/timeline.
func (h *IncidentsHandler) Timeline(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	entries, err := h.service.Timeline(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTimelineResponse(entries)})
}

func transitionInput(req dto.TransitionRequest) service.TransitionInput {
	return service.TransitionInput{
		Status:            req.Status,
		AssigneeID:        req.AssigneeID,
		TeamID:            req.TeamID,
		PendingReason:     req.PendingReason,
		PendingUntil:      req.PendingUntil,
		ResolutionSummary: req.ResolutionSummary,
		ClosureCode:       req.ClosureCode,
		Reason:            req.Reason,
		Metadata:          req.Metadata,
	}
}
