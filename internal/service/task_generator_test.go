package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsm-core/incident-engine/internal/domain"
)

func TestInterpolate(t *testing.T) {
	c := domain.NewWorkflowContext(map[string]any{
		"incident": map[string]any{"ticketNumber": "INC-000007", "title": "VPN down", "count": 3},
		"region":   "eu-west",
	})

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "Investigate", want: "Investigate"},
		{name: "nested", in: "Fix ${incident.ticketNumber}", want: "Fix INC-000007"},
		{name: "several", in: "${incident.title} in ${region}", want: "VPN down in eu-west"},
		{name: "padded path", in: "${ region }", want: "eu-west"},
		{name: "missing renders empty", in: "Call ${owner.name} now", want: "Call  now"},
		{name: "non string renders empty", in: "n=${incident.count}", want: "n="},
		{name: "only placeholder", in: "${missing}", want: ""},
		{name: "empty", in: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, interpolate(tt.in, c))
		})
	}
}

func TestGenerateResolvesAssignees(t *testing.T) {
	h := newHarness(t)
	gen := NewTaskGenerator(h.store.Directory())

	tpl := &domain.WorkflowTemplate{
		ID: "t",
		Steps: []domain.TemplateStep{
			{ID: "own", Name: "Own", Assignee: leadID},
			{ID: "role", Name: "Role", Assignee: "team_lead"},
			{ID: "inactive", Name: "Inactive", Assignee: inactiveID},
			{ID: "foreign", Name: "Foreign", Assignee: foreignID},
		},
	}

	tests := []struct {
		name     string
		fallback string
		want     []string
	}{
		{name: "context fallback", fallback: agentID, want: []string{leadID, agentID, agentID, agentID}},
		{name: "invalid fallback", fallback: unknownUUID, want: []string{leadID, "", "", ""}},
		{name: "no fallback", fallback: "", want: []string{leadID, "", "", ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf := &domain.Workflow{
				ID:      "wf-1",
				OrgID:   testOrg,
				Context: domain.NewWorkflowContext(map[string]any{domain.ContextKeyAssigneeID: tt.fallback}),
			}
			tasks, err := gen.Generate(context.Background(), tpl, wf, leadID, baseTime)
			require.NoError(t, err)
			require.Len(t, tasks, len(tt.want))
			for i, want := range tt.want {
				if want == "" {
					assert.Nil(t, tasks[i].AssigneeID, tasks[i].WorkflowStepID)
					continue
				}
				require.NotNil(t, tasks[i].AssigneeID)
				assert.Equal(t, want, *tasks[i].AssigneeID)
			}
		})
	}
}

func TestGenerateDueDatesAndPriority(t *testing.T) {
	h := newHarness(t)
	gen := NewTaskGenerator(h.store.Directory())

	tpl := &domain.WorkflowTemplate{
		ID: "t",
		Steps: []domain.TemplateStep{
			{ID: "sla", Name: "SLA wins", Config: map[string]any{"slaMinutes": 30}, TaskTemplate: domain.TaskTemplate{EstimatedMinutes: 90, Priority: "low"}},
			{ID: "estimate", Name: "Estimate", TaskTemplate: domain.TaskTemplate{EstimatedMinutes: 45, Priority: "bogus"}},
			{ID: "none", Name: "None", Config: map[string]any{"slaMinutes": "soon"}},
		},
	}
	wf := &domain.Workflow{
		ID:         "wf-1",
		OrgID:      testOrg,
		IncidentID: strPtr("inc-1"),
		Context: domain.NewWorkflowContext(map[string]any{
			"incident": map[string]any{"priority": "critical"},
			"priority": "low",
		}),
	}

	tasks, err := gen.Generate(context.Background(), tpl, wf, leadID, baseTime)
	require.NoError(t, err)
	require.Len(t, tasks, 3)

	assert.Equal(t, baseTime.Add(30*time.Minute), *tasks[0].DueDate)
	assert.Equal(t, baseTime.Add(45*time.Minute), *tasks[1].DueDate)
	assert.Nil(t, tasks[2].DueDate)

	assert.Equal(t, domain.PriorityLow, tasks[0].Priority)
	assert.Equal(t, domain.PriorityCritical, tasks[1].Priority)
	assert.Equal(t, domain.PriorityCritical, tasks[2].Priority)

	assert.Equal(t, "None", tasks[2].Title)
	assert.Equal(t, domain.TaskStatusInProgress, tasks[0].Status)
	for _, task := range tasks {
		assert.Equal(t, "inc-1", *task.IncidentID)
		assert.Equal(t, leadID, task.CreatedBy)
		assert.True(t, task.WorkflowLinked())
	}
}

func TestPriorityFromContextDefaultsToMedium(t *testing.T) {
	assert.Equal(t, domain.PriorityMedium, priorityFromContext(domain.NewWorkflowContext(nil)))
	assert.Equal(t, domain.PriorityHigh, priorityFromContext(domain.NewWorkflowContext(map[string]any{"priority": "HIGH"})))
}
