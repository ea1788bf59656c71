package http

import (
	"bytes"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/itsm-core/incident-engine/internal/api/http/handlers"
	"github.com/itsm-core/incident-engine/internal/auth"
	"github.com/itsm-core/incident-engine/internal/config"
	"github.com/itsm-core/incident-engine/internal/domain"
	"github.com/itsm-core/incident-engine/internal/events"
	"github.com/itsm-core/incident-engine/internal/observability"
	"github.com/itsm-core/incident-engine/internal/persistence"
	"github.com/itsm-core/incident-engine/internal/service"
	"github.com/itsm-core/incident-engine/internal/templates"
)

const (
	testOrg  = "org-1"
	adminID  = "1b9d6bcd-0000-4000-8000-000000000001"
	agentID  = "1b9d6bcd-0000-4000-8000-000000000002"
	password = "correct horse"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func newTestApp(t *testing.T, limits config.RateLimitConfig) *fiber.App {
	t.Helper()
	cfg := config.Config{
		App:         config.AppConfig{Name: "incident-engine"},
		SLA:         config.SLAConfig{DefaultResponseMinutes: 60, DefaultResolutionMinutes: 480},
		Concurrency: config.ConcurrencyConfig{MaxRetries: 2, RetryIntervalMs: 1},
		Auth:        config.AuthConfig{JWTSecret: "router-secret", AccessTokenTTLMinutes: 5, BcryptCost: 4},
	}

	mem, err := persistence.NewMemoryStore()
	require.NoError(t, err)
	hash, err := auth.NewPasswordHasher(cfg.Auth.BcryptCost).Hash(password)
	require.NoError(t, err)
	for _, m := range []*domain.Member{
		{ID: adminID, OrgID: testOrg, Name: "Admin", Email: "admin@example.com", PasswordHash: hash, Role: domain.MemberRoleAdmin, Active: true},
		{ID: agentID, OrgID: testOrg, Name: "Agent", Email: "agent@example.com", PasswordHash: hash, Role: domain.MemberRoleAgent, Active: true},
	} {
		require.NoError(t, mem.SaveMember(m))
	}

	logger := zap.NewNop()
	registry := templates.NewRegistry(nil)
	dispatcher := events.NewInMemoryDispatcher()
	workflows := service.NewWorkflowService(cfg, service.WorkflowDependencies{Store: mem, Registry: registry, Dispatcher: dispatcher, Logger: logger})
	incidents := service.NewIncidentService(cfg, service.IncidentDependencies{
		Store:         mem,
		TicketNumbers: persistence.NewMemoryTicketNumbers(),
		Registry:      registry,
		Workflows:     workflows,
		Dispatcher:    dispatcher,
		Logger:        logger,
	})
	analytics := service.NewAnalyticsService(cfg, service.AnalyticsDependencies{Store: mem, Logger: logger})
	authService := service.NewAuthService(cfg, service.AuthDependencies{Directory: mem.Directory(), Logger: logger})
	metrics := observability.NewMetrics()

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, time.Second, limits)
	RegisterRoutes(app, RouteConfig{
		Health:       handlers.NewHealthHandler(cfg.App.Name, "test", mem, nil, metrics),
		Auth:         handlers.NewAuthHandler(authService),
		Incidents:    handlers.NewIncidentsHandler(incidents),
		Workflows:    handlers.NewWorkflowsHandler(workflows, analytics),
		Authenticate: auth.NewAuthenticator(authService.TokenManager(), mem.Directory()).Authenticate,
	})
	return app
}

func doRequest(t *testing.T, app *fiber.App, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func login(t *testing.T, app *fiber.App, email string) string {
	t.Helper()
	status, env := doRequest(t, app, nethttp.MethodPost, "/auth/login", "", map[string]string{"email": email, "password": password})
	require.Equal(t, nethttp.StatusOK, status)
	var data struct {
		Auth struct {
			Token string `json:"token"`
		} `json:"auth"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.Auth.Token)
	return data.Auth.Token
}

func TestHealthProbesArePublic(t *testing.T) {
	app := newTestApp(t, config.RateLimitConfig{})

	status, _ := doRequest(t, app, nethttp.MethodGet, "/health/live", "", nil)
	assert.Equal(t, nethttp.StatusOK, status)

	status, _ = doRequest(t, app, nethttp.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, nethttp.StatusOK, status)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	app := newTestApp(t, config.RateLimitConfig{})

	status, env := doRequest(t, app, nethttp.MethodGet, "/incidents/abc", "", nil)
	assert.Equal(t, nethttp.StatusUnauthorized, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	status, _ = doRequest(t, app, nethttp.MethodGet, "/workflows/abc", "not-a-token", nil)
	assert.Equal(t, nethttp.StatusUnauthorized, status)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	app := newTestApp(t, config.RateLimitConfig{})

	status, env := doRequest(t, app, nethttp.MethodPost, "/auth/login", "", map[string]string{"email": "admin@example.com", "password": "nope"})
	assert.Equal(t, nethttp.StatusUnauthorized, status)
	require.NotNil(t, env.Error)

	status, env = doRequest(t, app, nethttp.MethodPost, "/auth/login", "", map[string]string{"email": "not-an-email", "password": "x"})
	assert.Equal(t, nethttp.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
	assert.Equal(t, "email", env.Error.Details["field"])
}

func TestIncidentLifecycleOverHTTP(t *testing.T) {
	app := newTestApp(t, config.RateLimitConfig{})
	token := login(t, app, "admin@example.com")

	status, env := doRequest(t, app, nethttp.MethodPost, "/incidents", token, map[string]any{"title": "Mail down", "priority": "urgent"})
	assert.Equal(t, nethttp.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "priority", env.Error.Details["field"])
	assert.Equal(t, "oneof", env.Error.Details["rule"])

	status, env = doRequest(t, app, nethttp.MethodPost, "/incidents", token, map[string]any{"title": "Mail down", "priority": "high"})
	require.Equal(t, nethttp.StatusCreated, status)
	var created struct {
		ID           string `json:"id"`
		TicketNumber string `json:"ticketNumber"`
		Status       string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, "INC-000001", created.TicketNumber)
	assert.Equal(t, "new", created.Status)

	status, env = doRequest(t, app, nethttp.MethodPost, "/incidents/"+created.ID+"/transitions", token, map[string]any{"status": "pending", "pendingReason": "vendor"})
	assert.Equal(t, nethttp.StatusConflict, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "ILLEGAL_TRANSITION", env.Error.Code)

	status, env = doRequest(t, app, nethttp.MethodPost, "/incidents/"+created.ID+"/transitions", token, map[string]any{"status": "assigned", "assigneeId": agentID})
	require.Equal(t, nethttp.StatusOK, status)
	var moved struct {
		Status     string `json:"status"`
		AssigneeID string `json:"assigneeId"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &moved))
	assert.Equal(t, "assigned", moved.Status)
	assert.Equal(t, agentID, moved.AssigneeID)

	status, env = doRequest(t, app, nethttp.MethodGet, "/incidents/"+created.ID+"/timeline", token, nil)
	require.Equal(t, nethttp.StatusOK, status)
	var timeline []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &timeline))
	assert.Len(t, timeline, 2)

	status, env = doRequest(t, app, nethttp.MethodGet, "/incidents/missing", token, nil)
	assert.Equal(t, nethttp.StatusNotFound, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestWorkflowRoutesOverHTTP(t *testing.T) {
	app := newTestApp(t, config.RateLimitConfig{})
	token := login(t, app, "agent@example.com")

	status, env := doRequest(t, app, nethttp.MethodPost, "/workflows", token, map[string]any{
		"name":       "Change rollout",
		"entityType": "change",
		"entityId":   "chg-9",
		"steps":      []map[string]any{{"id": "plan", "name": "Plan"}, {"id": "ship", "name": "Ship"}},
	})
	require.Equal(t, nethttp.StatusCreated, status)
	var wf struct {
		ID            string `json:"id"`
		Status        string `json:"status"`
		CurrentStepID string `json:"currentStepId"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &wf))
	assert.Equal(t, "in_progress", wf.Status)
	assert.Equal(t, "plan", wf.CurrentStepID)

	status, env = doRequest(t, app, nethttp.MethodPost, "/workflows/"+wf.ID+"/advance", token, map[string]any{"action": "approve"})
	require.Equal(t, nethttp.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &wf))
	assert.Equal(t, "ship", wf.CurrentStepID)

	status, _ = doRequest(t, app, nethttp.MethodPost, "/workflows/"+wf.ID+"/cancel", token, nil)
	require.Equal(t, nethttp.StatusOK, status)

	status, env = doRequest(t, app, nethttp.MethodPost, "/workflows/"+wf.ID+"/rollback", token, map[string]any{"targetStepId": "plan"})
	assert.Equal(t, nethttp.StatusConflict, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "ILLEGAL_TRANSITION", env.Error.Code)
}

func TestRoleRestrictedRoutes(t *testing.T) {
	app := newTestApp(t, config.RateLimitConfig{})
	agent := login(t, app, "agent@example.com")
	admin := login(t, app, "admin@example.com")

	status, env := doRequest(t, app, nethttp.MethodGet, "/workflows/analytics/exceptions", agent, nil)
	assert.Equal(t, nethttp.StatusForbidden, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	status, env = doRequest(t, app, nethttp.MethodGet, "/workflows/analytics/exceptions", admin, nil)
	require.Equal(t, nethttp.StatusOK, status)
	var summary struct {
		TotalWorkflows  int   `json:"totalWorkflows"`
		TopFailingSteps []any `json:"topFailingSteps"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Zero(t, summary.TotalWorkflows)
	assert.NotNil(t, summary.TopFailingSteps)

	status, _ = doRequest(t, app, nethttp.MethodGet, "/health/metrics", agent, nil)
	assert.Equal(t, nethttp.StatusForbidden, status)
	status, _ = doRequest(t, app, nethttp.MethodGet, "/health/metrics", admin, nil)
	assert.Equal(t, nethttp.StatusOK, status)
}

func TestUnknownRouteReturnsNotFound(t *testing.T) {
	app := newTestApp(t, config.RateLimitConfig{})
	status, env := doRequest(t, app, nethttp.MethodGet, "/nowhere", "", nil)
	assert.Equal(t, nethttp.StatusNotFound, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestRateLimiterSkipsHealth(t *testing.T) {
	app := newTestApp(t, config.RateLimitConfig{RPS: 0.001, Burst: 1})

	status, _ := doRequest(t, app, nethttp.MethodPost, "/auth/login", "", map[string]string{"email": "admin@example.com", "password": "nope"})
	assert.Equal(t, nethttp.StatusUnauthorized, status)

	status, env := doRequest(t, app, nethttp.MethodPost, "/auth/login", "", map[string]string{"email": "admin@example.com", "password": "nope"})
	assert.Equal(t, nethttp.StatusTooManyRequests, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "RATE_LIMITED", env.Error.Code)

	for i := 0; i < 3; i++ {
		status, _ = doRequest(t, app, nethttp.MethodGet, "/health/live", "", nil)
		assert.Equal(t, nethttp.StatusOK, status)
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	app := newTestApp(t, config.RateLimitConfig{})

	req := httptest.NewRequest(nethttp.MethodGet, "/health/live", nil)
	req.Header.Set(observability.HeaderRequestID, "req-42")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, "req-42", resp.Header.Get(observability.HeaderRequestID))

	resp, err = app.Test(httptest.NewRequest(nethttp.MethodGet, "/health/live", nil), -1)
	require.NoError(t, err)
	assert.Len(t, resp.Header.Get(observability.HeaderRequestID), 36)
}

func TestMetricsCountRoutesAndEvents(t *testing.T) {
	app := newTestApp(t, config.RateLimitConfig{})
	admin := login(t, app, "admin@example.com")

	status, _ := doRequest(t, app, nethttp.MethodGet, "/incidents/"+agentID, admin, nil)
	require.Equal(t, nethttp.StatusNotFound, status)

	status, env := doRequest(t, app, nethttp.MethodGet, "/health/metrics", admin, nil)
	require.Equal(t, nethttp.StatusOK, status)
	var snap observability.MetricsSnapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))

	var found bool
	for _, r := range snap.Routes {
		if r.Route == "/incidents/:id" && r.Method == nethttp.MethodGet {
			found = true
			assert.Equal(t, int64(1), r.Requests)
			assert.Equal(t, int64(1), r.ErrorCodes["NOT_FOUND"])
		}
	}
	assert.True(t, found)
}
