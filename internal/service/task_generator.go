package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/itsm-core/incident-engine/internal/domain"
	"github.com/itsm-core/incident-engine/internal/repository"
	"github.com/itsm-core/incident-engine/internal/sla"
)

var placeholderPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// TaskGenerator turns template steps into tasks correlated with a workflow.
type TaskGenerator struct {
	directory repository.DirectoryRepository
}

// NewTaskGenerator builds a generator validating assignees against the directory.
func NewTaskGenerator(directory repository.DirectoryRepository) *TaskGenerator {
	return &TaskGenerator{directory: directory}
}

// Generate builds one task per template step, in order. The first task starts in progress.
func (g *TaskGenerator) Generate(ctx context.Context, tpl *domain.WorkflowTemplate, wf *domain.Workflow, actorID string, now time.Time) ([]*domain.Task, error) {
	fallback, err := g.validMember(ctx, wf.OrgID, wf.Context.AssigneeID)
	if err != nil {
		return nil, err
	}
	contextPriority := priorityFromContext(wf.Context)

	tasks := make([]*domain.Task, 0, len(tpl.Steps))
	for i, step := range tpl.Steps {
		assignee := fallback
		if _, parseErr := uuid.Parse(step.Assignee); parseErr == nil {
			own, err := g.validMember(ctx, wf.OrgID, step.Assignee)
			if err != nil {
				return nil, err
			}
			if own != nil {
				assignee = own
			}
		}

		due := sla.StepDueDate(step.SLAMinutes(), now)
		if due == nil {
			due = sla.StepDueDate(step.TaskTemplate.EstimatedMinutes, now)
		}

		priority := step.TaskTemplate.Priority
		if _, ok := domain.ParsePriority(string(priority)); !ok {
			priority = contextPriority
		}

		status := domain.TaskStatusPending
		if i == 0 {
			status = domain.TaskStatusInProgress
		}

		title := interpolate(step.TaskTemplate.Title, wf.Context)
		if title == "" {
			title = step.Name
		}

		workflowID := wf.ID
		stepID := step.ID
		tasks = append(tasks, &domain.Task{
			ID:               uuid.NewString(),
			OrgID:            wf.OrgID,
			Title:            title,
			Description:      interpolate(step.TaskTemplate.Description, wf.Context),
			Status:           status,
			Priority:         priority,
			AssigneeID:       assignee,
			DueDate:          due,
			EstimatedMinutes: step.TaskTemplate.EstimatedMinutes,
			Tags:             append([]string(nil), step.TaskTemplate.Tags...),
			WorkflowID:       &workflowID,
			WorkflowStepID:   &stepID,
			IncidentID:       cloneStringPtr(wf.IncidentID),
			SourceEntityType: domain.SourceEntityWorkflow,
			SourceEntityID:   wf.ID,
			CreatedBy:        actorID,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
	}
	return tasks, nil
}

// validMember returns id when it names an active member of the org, otherwise nil.
func (g *TaskGenerator) validMember(ctx context.Context, orgID, id string) (*string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	ok, err := g.directory.MemberExists(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &id, nil
}

func priorityFromContext(c domain.WorkflowContext) domain.Priority {
	for _, path := range []string{"incident.priority", "priority"} {
		if raw, ok := c.LookupString(path); ok {
			if p, ok := domain.ParsePriority(raw); ok {
				return p
			}
		}
	}
	return domain.PriorityMedium
}

// interpolate replaces ${dotted.path} placeholders with string values from the context.
// Missing or non-string values render empty.
func interpolate(text string, c domain.WorkflowContext) string {
	if text == "" {
		return ""
	}
	out := placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		path := strings.TrimSpace(placeholderPattern.FindStringSubmatch(match)[1])
		value, ok := c.LookupString(path)
		if !ok {
			return ""
		}
		return value
	})
	return strings.TrimSpace(out)
}

func cloneStringPtr(v *string) *string {
	if v == nil {
		return nil
	}
	return strPtr(*v)
}
