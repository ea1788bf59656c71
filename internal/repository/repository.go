package repository

import (
	"context"
	"time"

	"github.com/itsm-core/incident-engine/internal/domain"
)

// IncidentRepository persists incidents. Update succeeds only when the stored
// version equals expectedVersion and bumps the version on success.
type IncidentRepository interface {
	Create(ctx context.Context, incident *domain.Incident) error
	Update(ctx context.Context, incident *domain.Incident, expectedVersion int) error
	GetByID(ctx context.Context, orgID, id string) (*domain.Incident, error)
}

// WorkflowRepository persists workflows together with their embedded steps and context.
type WorkflowRepository interface {
	Create(ctx context.Context, workflow *domain.Workflow) error
	Update(ctx context.Context, workflow *domain.Workflow, expectedVersion int) error
	GetByID(ctx context.Context, orgID, id string) (*domain.Workflow, error)
	ListCreatedSince(ctx context.Context, orgID string, since time.Time) ([]domain.Workflow, error)
}

// TaskFilter narrows task queries.
type TaskFilter struct {
	OrgID      string
	IncidentID *string
	WorkflowID *string
	Statuses   []domain.TaskStatus
	// WorkflowLinkedOnly keeps tasks carrying a workflow id or a workflow source entity.
	WorkflowLinkedOnly bool
}

// Matches applies the filter to a single task.
func (f TaskFilter) Matches(task *domain.Task) bool {
	if task.OrgID != f.OrgID {
		return false
	}
	if f.IncidentID != nil && (task.IncidentID == nil || *task.IncidentID != *f.IncidentID) {
		return false
	}
	if f.WorkflowID != nil && (task.WorkflowID == nil || *task.WorkflowID != *f.WorkflowID) {
		return false
	}
	if f.WorkflowLinkedOnly && !task.WorkflowLinked() {
		return false
	}
	if len(f.Statuses) > 0 {
		for _, status := range f.Statuses {
			if task.Status == status {
				return true
			}
		}
		return false
	}
	return true
}

// TaskRepository is the task sink used by the generator and the resolve gate. Task status
// changes are written to the tasks table by the Task module, not through this interface.
type TaskRepository interface {
	CreateMany(ctx context.Context, tasks []*domain.Task) error
	Count(ctx context.Context, filter TaskFilter) (int, error)
	List(ctx context.Context, filter TaskFilter) ([]domain.Task, error)
}

// TimelineRepository stores incident timeline entries.
type TimelineRepository interface {
	Append(ctx context.Context, entry *domain.TimelineEntry) error
	ListByIncident(ctx context.Context, orgID, incidentID string) ([]domain.TimelineEntry, error)
}

// AuditLogRepository stores audit entries.
type AuditLogRepository interface {
	Append(ctx context.Context, entry *domain.AuditLogEntry) error
	ListByEntity(ctx context.Context, orgID, entityType, entityID string) ([]domain.AuditLogEntry, error)
}

// DirectoryRepository resolves organization members and teams.
type DirectoryRepository interface {
	MemberExists(ctx context.Context, orgID, id string) (bool, error)
	TeamExists(ctx context.Context, orgID, id string) (bool, error)
	GetMemberByID(ctx context.Context, orgID, id string) (*domain.Member, error)
	GetMemberByEmail(ctx context.Context, email string) (*domain.Member, error)
}

// SLAPolicyRepository finds the active policy for a priority. A nil policy means none matched.
type SLAPolicyRepository interface {
	FindActive(ctx context.Context, orgID string, priority domain.Priority) (*domain.SLAPolicy, error)
}

// TicketNumberGenerator hands out ticket numbers that are never reused.
type TicketNumberGenerator interface {
	Next(ctx context.Context, orgID, kind string) (string, error)
}

// Repositories groups the writers that take part in a unit of work.
type Repositories interface {
	Incidents() IncidentRepository
	Workflows() WorkflowRepository
	Tasks() TaskRepository
	Timeline() TimelineRepository
	AuditLog() AuditLogRepository
}

// TxFunc runs inside a transaction; returning an error rolls every write back.
type TxFunc func(ctx context.Context, tx Repositories) error

// Store is the record store.
type Store interface {
	Repositories
	Directory() DirectoryRepository
	SLAPolicies() SLAPolicyRepository
	Transaction(ctx context.Context, fn TxFunc) error
	Ping(ctx context.Context) error
}
