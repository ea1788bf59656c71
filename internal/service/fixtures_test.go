package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/itsm-core/incident-engine/internal/config"
	"github.com/itsm-core/incident-engine/internal/domain"
	"github.com/itsm-core/incident-engine/internal/events"
	"github.com/itsm-core/incident-engine/internal/persistence"
	"github.com/itsm-core/incident-engine/internal/repository"
	"github.com/itsm-core/incident-engine/internal/templates"
)

const (
	testOrg     = "org-1"
	otherOrg    = "org-2"
	agentID     = "6f1c2d3e-0000-4000-8000-000000000001"
	leadID      = "6f1c2d3e-0000-4000-8000-000000000002"
	inactiveID  = "6f1c2d3e-0000-4000-8000-000000000003"
	foreignID   = "6f1c2d3e-0000-4000-8000-000000000004"
	teamID      = "7a2b3c4d-0000-4000-8000-000000000001"
	unknownUUID = "00000000-0000-4000-8000-00000000dead"
)

var baseTime = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingDispatcher struct {
	events.Dispatcher
	mu   sync.Mutex
	seen []events.Event
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{Dispatcher: events.NewInMemoryDispatcher()}
}

func (d *recordingDispatcher) Publish(ctx context.Context, event events.Event) error {
	d.mu.Lock()
	d.seen = append(d.seen, event)
	d.mu.Unlock()
	return d.Dispatcher.Publish(ctx, event)
}

func (d *recordingDispatcher) types() []events.EventType {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]events.EventType, 0, len(d.seen))
	for _, e := range d.seen {
		out = append(out, e.Type)
	}
	return out
}

type harness struct {
	mem        *persistence.MemoryStore
	store      repository.Store
	clock      *testClock
	dispatcher *recordingDispatcher
	registry   *templates.Registry
	incidents  *IncidentService
	workflows  *WorkflowService
	analytics  *AnalyticsService
	actor      Actor
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	cfg       config.Config
	templates []domain.WorkflowTemplate
	wrap      func(repository.Store) repository.Store
}

func withTemplates(tpls ...domain.WorkflowTemplate) harnessOption {
	return func(h *harnessConfig) { h.templates = tpls }
}

func withStoreWrapper(wrap func(repository.Store) repository.Store) harnessOption {
	return func(h *harnessConfig) { h.wrap = wrap }
}

func withAnalyticsTTL(seconds int) harnessOption {
	return func(h *harnessConfig) { h.cfg.Analytics.CacheTTLSeconds = seconds }
}

func testConfig() config.Config {
	return config.Config{
		SLA:         config.SLAConfig{DefaultResponseMinutes: 60, DefaultResolutionMinutes: 480},
		Concurrency: config.ConcurrencyConfig{MaxRetries: 3, RetryIntervalMs: 1},
		Auth:        config.AuthConfig{JWTSecret: "test-secret", AccessTokenTTLMinutes: 30, BcryptCost: 4},
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	hc := &harnessConfig{cfg: testConfig(), templates: []domain.WorkflowTemplate{criticalTemplate()}}
	for _, opt := range opts {
		opt(hc)
	}

	mem, err := persistence.NewMemoryStore()
	require.NoError(t, err)
	seedDirectory(t, mem)

	var store repository.Store = mem
	if hc.wrap != nil {
		store = hc.wrap(mem)
	}

	clock := &testClock{now: baseTime}
	dispatcher := newRecordingDispatcher()
	registry := templates.NewRegistry(hc.templates)

	workflows := NewWorkflowService(hc.cfg, WorkflowDependencies{
		Store:      store,
		Registry:   registry,
		Dispatcher: dispatcher,
		Clock:      clock.Now,
	})
	incidents := NewIncidentService(hc.cfg, IncidentDependencies{
		Store:         store,
		TicketNumbers: persistence.NewMemoryTicketNumbers(),
		Registry:      registry,
		Workflows:     workflows,
		Dispatcher:    dispatcher,
		Clock:         clock.Now,
	})
	analytics := NewAnalyticsService(hc.cfg, AnalyticsDependencies{Store: store, Clock: clock.Now})

	return &harness{
		mem:        mem,
		store:      store,
		clock:      clock,
		dispatcher: dispatcher,
		registry:   registry,
		incidents:  incidents,
		workflows:  workflows,
		analytics:  analytics,
		actor:      Actor{ID: leadID, OrgID: testOrg},
	}
}

func seedDirectory(t *testing.T, mem *persistence.MemoryStore) {
	t.Helper()
	members := []*domain.Member{
		{ID: agentID, OrgID: testOrg, Name: "Agent", Email: "agent@example.com", Role: domain.MemberRoleAgent, Active: true},
		{ID: leadID, OrgID: testOrg, Name: "Lead", Email: "lead@example.com", Role: domain.MemberRoleTeamLead, Active: true},
		{ID: inactiveID, OrgID: testOrg, Name: "Gone", Email: "gone@example.com", Role: domain.MemberRoleAgent, Active: false},
		{ID: foreignID, OrgID: otherOrg, Name: "Elsewhere", Email: "else@example.com", Role: domain.MemberRoleAgent, Active: true},
	}
	for _, m := range members {
		require.NoError(t, mem.SaveMember(m))
	}
	require.NoError(t, mem.SaveTeam(&domain.Team{ID: teamID, OrgID: testOrg, Name: "Ops", IsActive: true}))
}

// criticalTemplate is a three step incident template selected for critical priority.
func criticalTemplate() domain.WorkflowTemplate {
	return domain.WorkflowTemplate{
		ID:         "critical-response",
		Name:       "Critical response",
		Type:       "incident_response",
		CaseType:   CaseTypeIncident,
		IsActive:   true,
		AutoAssign: true,
		Match:      domain.TemplateMatch{Priorities: []domain.Priority{domain.PriorityCritical}},
		Steps: []domain.TemplateStep{
			{
				ID: "triage", Name: "Triage", Type: domain.StepTypeManual,
				TaskTemplate: domain.TaskTemplate{Title: "Triage ${incident.ticketNumber}", Description: "Assess ${incident.title}"},
				Config:       map[string]any{"slaMinutes": 15},
			},
			{
				ID: "mitigate", Name: "Mitigate", Type: domain.StepTypeManual,
				TaskTemplate: domain.TaskTemplate{Title: "Mitigate ${incident.ticketNumber}", EstimatedMinutes: 120, Priority: domain.PriorityHigh},
			},
			{
				ID: "review", Name: "Review", Type: domain.StepTypeApproval,
				TaskTemplate: domain.TaskTemplate{Title: "${missing.value}"},
			},
		},
	}
}

func linearSteps(ids ...string) []domain.WorkflowStep {
	steps := make([]domain.WorkflowStep, 0, len(ids))
	for _, id := range ids {
		steps = append(steps, domain.WorkflowStep{ID: id, Name: "Step " + id})
	}
	return steps
}

func (h *harness) createIncident(t *testing.T, priority domain.Priority) *domain.Incident {
	t.Helper()
	inc, err := h.incidents.Create(context.Background(), h.actor, IncidentCreateInput{
		Title:    "Checkout failing",
		Priority: string(priority),
		Channel:  "email",
	})
	require.NoError(t, err)
	return inc
}

// seedIncident writes an incident in an arbitrary status, bypassing the lifecycle.
func (h *harness) seedIncident(t *testing.T, id string, status domain.IncidentStatus) *domain.Incident {
	t.Helper()
	assignee := agentID
	inc := &domain.Incident{
		ID:           id,
		OrgID:        testOrg,
		TicketNumber: "INC-" + id,
		Title:        "Seeded",
		Status:       status,
		Priority:     domain.PriorityMedium,
		AssigneeID:   &assignee,
		Version:      1,
		CreatedBy:    leadID,
		CreatedAt:    h.clock.Now(),
		UpdatedAt:    h.clock.Now(),
	}
	if status == domain.IncidentStatusPending {
		paused := h.clock.Now()
		inc.SLAPausedAt = &paused
		reason := "waiting"
		inc.OnHoldReason = &reason
	}
	require.NoError(t, h.mem.Transaction(context.Background(), func(ctx context.Context, tx repository.Repositories) error {
		return tx.Incidents().Create(ctx, inc)
	}))
	return inc
}

func (h *harness) createWorkflow(t *testing.T, steps []domain.WorkflowStep) *domain.Workflow {
	t.Helper()
	wf, err := h.workflows.Create(context.Background(), h.actor, WorkflowCreateInput{
		Name:       "Manual workflow",
		EntityType: "change",
		EntityID:   "chg-1",
		Steps:      steps,
	})
	require.NoError(t, err)
	return wf
}

func (h *harness) incidentTasks(t *testing.T, incidentID string) []domain.Task {
	t.Helper()
	tasks, err := h.store.Tasks().List(context.Background(), repository.TaskFilter{OrgID: testOrg, IncidentID: &incidentID})
	require.NoError(t, err)
	return tasks
}

func fullGateInput(status domain.IncidentStatus) TransitionInput {
	return TransitionInput{
		Status:            string(status),
		PendingReason:     "waiting on vendor",
		ResolutionSummary: "restarted the service",
		ClosureCode:       "fixed",
		Reason:            "duplicate",
	}
}
