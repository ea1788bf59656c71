package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/itsm-core/incident-engine/internal/api/http/handlers"
	"github.com/itsm-core/incident-engine/internal/auth"
	"github.com/itsm-core/incident-engine/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health       *handlers.HealthHandler
	Auth         *handlers.AuthHandler
	Incidents    *handlers.IncidentsHandler
	Workflows    *handlers.WorkflowsHandler
	Authenticate fiber.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/auth/login", cfg.Auth.Login)

	app.Get("/health/metrics", cfg.Authenticate, auth.RequireAtLeast(domain.MemberRoleAdmin), cfg.Health.Metrics)

	incidents := app.Group("/incidents", cfg.Authenticate)
	incidents.Post("/", cfg.Incidents.Create)
	incidents.Get("/:id", cfg.Incidents.Get)
	incidents.Patch("/:id", cfg.Incidents.Update)
	incidents.Post("/:id/transitions", cfg.Incidents.Transition)
	incidents.Get("/:id/timeline", cfg.Incidents.Timeline)

	app.Get("/workflow-templates", cfg.Authenticate, cfg.Workflows.Templates)

	workflows := app.Group("/workflows", cfg.Authenticate)
	workflows.Post("/", cfg.Workflows.Create)
	workflows.Post("/from-template", cfg.Workflows.CreateFromTemplate)
	workflows.Get("/analytics/exceptions", auth.RequireAtLeast(domain.MemberRoleTeamLead), cfg.Workflows.ExceptionAnalytics)
	workflows.Get("/:id", cfg.Workflows.Get)
	workflows.Get("/:id/tasks", cfg.Workflows.Tasks)
	workflows.Post("/:id/advance", cfg.Workflows.Advance)
	workflows.Post("/:id/rollback", cfg.Workflows.Rollback)
	workflows.Post("/:id/cancel", cfg.Workflows.Cancel)
}
