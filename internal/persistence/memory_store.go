package persistence

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-memdb"
	"github.com/jackc/pgx/v5"

	"github.com/itsm-core/incident-engine/internal/domain"
	"github.com/itsm-core/incident-engine/internal/repository"
	"github.com/itsm-core/incident-engine/pkg/util/errorutil"
)

const (
	tableIncidents = "incidents"
	tableWorkflows = "workflows"
	tableTasks     = "tasks"
	tableTimeline  = "timeline"
	tableAudit     = "audit"
	tableMembers   = "members"
	tableTeams     = "teams"
	tablePolicies  = "sla_policies"
)

// Rows keep index fields as plain strings next to the stored record.
type incidentRow struct {
	ID, OrgID string
	Incident  *domain.Incident
}

type workflowRow struct {
	ID, OrgID string
	Seq       uint64
	Workflow  *domain.Workflow
}

type taskRow struct {
	ID, OrgID string
	Seq       uint64
	Task      *domain.Task
}

type timelineRow struct {
	ID, OrgID, IncidentID string
	Seq                   uint64
	Entry                 *domain.TimelineEntry
}

type auditRow struct {
	ID, OrgID, EntityType, EntityID string
	Seq                             uint64
	Entry                           *domain.AuditLogEntry
}

type memberRow struct {
	ID, OrgID, Email string
	Member           *domain.Member
}

type teamRow struct {
	ID, OrgID string
	Team      *domain.Team
}

type policyRow struct {
	ID, OrgID string
	Seq       uint64
	Policy    *domain.SLAPolicy
}

func idIndex() *memdb.IndexSchema {
	return &memdb.IndexSchema{Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}}
}

func orgIndex() *memdb.IndexSchema {
	return &memdb.IndexSchema{Name: "org", AllowMissing: true, Indexer: &memdb.StringFieldIndex{Field: "OrgID"}}
}

func memorySchema() *memdb.DBSchema {
	simple := func(name string, extra ...*memdb.IndexSchema) *memdb.TableSchema {
		indexes := map[string]*memdb.IndexSchema{"id": idIndex(), "org": orgIndex()}
		for _, idx := range extra {
			indexes[idx.Name] = idx
		}
		return &memdb.TableSchema{Name: name, Indexes: indexes}
	}
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableIncidents: simple(tableIncidents),
			tableWorkflows: simple(tableWorkflows),
			tableTasks:     simple(tableTasks),
			tableTimeline: simple(tableTimeline, &memdb.IndexSchema{
				Name:         "incident",
				AllowMissing: true,
				Indexer: &memdb.StringFieldIndex{Field: "IncidentID"},
			}),
			tableAudit: simple(tableAudit, &memdb.IndexSchema{
				Name:         "entity",
				AllowMissing: true,
				Indexer: &memdb.CompoundIndex{Indexes: []memdb.Indexer{
					&memdb.StringFieldIndex{Field: "EntityType"},
					&memdb.StringFieldIndex{Field: "EntityID"},
				}},
			}),
			tableMembers: simple(tableMembers, &memdb.IndexSchema{
				Name:         "email",
				Unique:       true,
				AllowMissing: true,
				Indexer: &memdb.StringFieldIndex{Field: "Email", Lowercase: true},
			}),
			tableTeams:    simple(tableTeams),
			tablePolicies: simple(tablePolicies),
		},
	}
}

// MemoryStore is a transactional in-process record store backed by go-memdb.
// Records are cloned on the way in and out so callers never share state with the store.
type MemoryStore struct {
	*memRepositories
	db  *memdb.MemDB
	seq atomic.Uint64
}

// NewMemoryStore builds an empty store.
func NewMemoryStore() (*MemoryStore, error) {
	db, err := memdb.NewMemDB(memorySchema())
	if err != nil {
		return nil, err
	}
	s := &MemoryStore{db: db}
	s.memRepositories = newMemRepositories(s, nil)
	return s, nil
}

func (s *MemoryStore) nextSeq() uint64 {
	return s.seq.Add(1)
}

// Transaction runs fn inside a single write transaction; an error aborts every write.
func (s *MemoryStore) Transaction(ctx context.Context, fn repository.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	txn := s.db.Txn(true)
	defer txn.Abort()
	if err := fn(ctx, newMemRepositories(s, txn)); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Directory() repository.DirectoryRepository {
	return &memDirectory{tx: s.memRepositories.tx}
}

func (s *MemoryStore) SLAPolicies() repository.SLAPolicyRepository {
	return &memPolicies{tx: s.memRepositories.tx}
}

// SaveMember inserts or replaces a directory member.
func (s *MemoryStore) SaveMember(member *domain.Member) error {
	c := *member
	c.TeamID = cloneStr(member.TeamID)
	return s.tx.write(func(txn *memdb.Txn) error {
		return txn.Insert(tableMembers, &memberRow{ID: c.ID, OrgID: c.OrgID, Email: c.Email, Member: &c})
	})
}

// SaveTeam inserts or replaces a team.
func (s *MemoryStore) SaveTeam(team *domain.Team) error {
	c := *team
	return s.tx.write(func(txn *memdb.Txn) error {
		return txn.Insert(tableTeams, &teamRow{ID: c.ID, OrgID: c.OrgID, Team: &c})
	})
}

// SavePolicy inserts or replaces an SLA policy. Later saves win when several match.
func (s *MemoryStore) SavePolicy(policy *domain.SLAPolicy) error {
	c := *policy
	return s.tx.write(func(txn *memdb.Txn) error {
		return txn.Insert(tablePolicies, &policyRow{ID: c.ID, OrgID: c.OrgID, Seq: s.nextSeq(), Policy: &c})
	})
}

// SetTaskStatus overwrites a task's status. Task status belongs to the Task module; this
// stands in for its writes against the in-memory tasks table.
func (s *MemoryStore) SetTaskStatus(orgID, id string, status domain.TaskStatus) error {
	return s.tx.write(func(txn *memdb.Txn) error {
		raw, err := txn.First(tableTasks, "id", id)
		if err != nil {
			return err
		}
		if raw == nil || raw.(*taskRow).OrgID != orgID {
			return pgx.ErrNoRows
		}
		existing := raw.(*taskRow)
		updated := existing.Task.Clone()
		updated.Status = status
		updated.UpdatedAt = time.Now().UTC()
		return txn.Insert(tableTasks, &taskRow{ID: existing.ID, OrgID: existing.OrgID, Seq: existing.Seq, Task: updated})
	})
}

// memTx runs operations either inside a bound transaction or in their own.
type memTx struct {
	store *MemoryStore
	txn   *memdb.Txn
}

func (t memTx) read(fn func(txn *memdb.Txn) error) error {
	if t.txn != nil {
		return fn(t.txn)
	}
	txn := t.store.db.Txn(false)
	defer txn.Abort()
	return fn(txn)
}

func (t memTx) write(fn func(txn *memdb.Txn) error) error {
	if t.txn != nil {
		return fn(t.txn)
	}
	txn := t.store.db.Txn(true)
	defer txn.Abort()
	if err := fn(txn); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

type memRepositories struct {
	tx memTx
}

func newMemRepositories(s *MemoryStore, txn *memdb.Txn) *memRepositories {
	return &memRepositories{tx: memTx{store: s, txn: txn}}
}

func (r *memRepositories) Incidents() repository.IncidentRepository { return &memIncidents{tx: r.tx} }
func (r *memRepositories) Workflows() repository.WorkflowRepository { return &memWorkflows{tx: r.tx} }
func (r *memRepositories) Tasks() repository.TaskRepository         { return &memTasks{tx: r.tx} }
func (r *memRepositories) Timeline() repository.TimelineRepository  { return &memTimeline{tx: r.tx} }
func (r *memRepositories) AuditLog() repository.AuditLogRepository  { return &memAudit{tx: r.tx} }

type memIncidents struct{ tx memTx }

func (r *memIncidents) Create(ctx context.Context, incident *domain.Incident) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.tx.write(func(txn *memdb.Txn) error {
		return txn.Insert(tableIncidents, &incidentRow{ID: incident.ID, OrgID: incident.OrgID, Incident: incident.Clone()})
	})
}

func (r *memIncidents) Update(ctx context.Context, incident *domain.Incident, expectedVersion int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.tx.write(func(txn *memdb.Txn) error {
		raw, err := txn.First(tableIncidents, "id", incident.ID)
		if err != nil {
			return err
		}
		if raw == nil || raw.(*incidentRow).OrgID != incident.OrgID {
			return pgx.ErrNoRows
		}
		if raw.(*incidentRow).Incident.Version != expectedVersion {
			return errorutil.ErrConflict
		}
		stored := incident.Clone()
		stored.Version = expectedVersion + 1
		if err := txn.Insert(tableIncidents, &incidentRow{ID: stored.ID, OrgID: stored.OrgID, Incident: stored}); err != nil {
			return err
		}
		incident.Version = stored.Version
		return nil
	})
}

func (r *memIncidents) GetByID(ctx context.Context, orgID, id string) (*domain.Incident, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out *domain.Incident
	err := r.tx.read(func(txn *memdb.Txn) error {
		raw, err := txn.First(tableIncidents, "id", id)
		if err != nil {
			return err
		}
		if raw == nil || raw.(*incidentRow).OrgID != orgID {
			return pgx.ErrNoRows
		}
		out = raw.(*incidentRow).Incident.Clone()
		return nil
	})
	return out, err
}

type memWorkflows struct{ tx memTx }

func (r *memWorkflows) Create(ctx context.Context, wf *domain.Workflow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.tx.write(func(txn *memdb.Txn) error {
		return txn.Insert(tableWorkflows, &workflowRow{ID: wf.ID, OrgID: wf.OrgID, Seq: r.tx.store.nextSeq(), Workflow: wf.Clone()})
	})
}

func (r *memWorkflows) Update(ctx context.Context, wf *domain.Workflow, expectedVersion int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.tx.write(func(txn *memdb.Txn) error {
		raw, err := txn.First(tableWorkflows, "id", wf.ID)
		if err != nil {
			return err
		}
		if raw == nil || raw.(*workflowRow).OrgID != wf.OrgID {
			return pgx.ErrNoRows
		}
		existing := raw.(*workflowRow)
		if existing.Workflow.Version != expectedVersion {
			return errorutil.ErrConflict
		}
		stored := wf.Clone()
		stored.Version = expectedVersion + 1
		if err := txn.Insert(tableWorkflows, &workflowRow{ID: stored.ID, OrgID: stored.OrgID, Seq: existing.Seq, Workflow: stored}); err != nil {
			return err
		}
		wf.Version = stored.Version
		return nil
	})
}

func (r *memWorkflows) GetByID(ctx context.Context, orgID, id string) (*domain.Workflow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out *domain.Workflow
	err := r.tx.read(func(txn *memdb.Txn) error {
		raw, err := txn.First(tableWorkflows, "id", id)
		if err != nil {
			return err
		}
		if raw == nil || raw.(*workflowRow).OrgID != orgID {
			return pgx.ErrNoRows
		}
		out = raw.(*workflowRow).Workflow.Clone()
		return nil
	})
	return out, err
}

func (r *memWorkflows) ListCreatedSince(ctx context.Context, orgID string, since time.Time) ([]domain.Workflow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rows []*workflowRow
	err := r.tx.read(func(txn *memdb.Txn) error {
		it, err := txn.Get(tableWorkflows, "org", orgID)
		if err != nil {
			return err
		}
		for obj := it.Next(); obj != nil; obj = it.Next() {
			row := obj.(*workflowRow)
			if !row.Workflow.CreatedAt.Before(since) {
				rows = append(rows, row)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Seq < rows[j].Seq })
	out := make([]domain.Workflow, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row.Workflow.Clone())
	}
	return out, nil
}

type memTasks struct{ tx memTx }

func (r *memTasks) CreateMany(ctx context.Context, tasks []*domain.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.tx.write(func(txn *memdb.Txn) error {
		for _, task := range tasks {
			row := &taskRow{ID: task.ID, OrgID: task.OrgID, Seq: r.tx.store.nextSeq(), Task: task.Clone()}
			if err := txn.Insert(tableTasks, row); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *memTasks) Count(ctx context.Context, filter repository.TaskFilter) (int, error) {
	tasks, err := r.List(ctx, filter)
	return len(tasks), err
}

func (r *memTasks) List(ctx context.Context, filter repository.TaskFilter) ([]domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rows []*taskRow
	err := r.tx.read(func(txn *memdb.Txn) error {
		it, err := txn.Get(tableTasks, "org", filter.OrgID)
		if err != nil {
			return err
		}
		for obj := it.Next(); obj != nil; obj = it.Next() {
			row := obj.(*taskRow)
			if filter.Matches(row.Task) {
				rows = append(rows, row)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Seq < rows[j].Seq })
	out := make([]domain.Task, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row.Task.Clone())
	}
	return out, nil
}

type memTimeline struct{ tx memTx }

func (r *memTimeline) Append(ctx context.Context, entry *domain.TimelineEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c := *entry
	c.Metadata = domain.CloneMap(entry.Metadata)
	return r.tx.write(func(txn *memdb.Txn) error {
		return txn.Insert(tableTimeline, &timelineRow{
			ID: c.ID, OrgID: c.OrgID, IncidentID: c.IncidentID, Seq: r.tx.store.nextSeq(), Entry: &c,
		})
	})
}

func (r *memTimeline) ListByIncident(ctx context.Context, orgID, incidentID string) ([]domain.TimelineEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rows []*timelineRow
	err := r.tx.read(func(txn *memdb.Txn) error {
		it, err := txn.Get(tableTimeline, "incident", incidentID)
		if err != nil {
			return err
		}
		for obj := it.Next(); obj != nil; obj = it.Next() {
			if row := obj.(*timelineRow); row.OrgID == orgID {
				rows = append(rows, row)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Seq < rows[j].Seq })
	out := make([]domain.TimelineEntry, 0, len(rows))
	for _, row := range rows {
		entry := *row.Entry
		entry.Metadata = domain.CloneMap(row.Entry.Metadata)
		out = append(out, entry)
	}
	return out, nil
}

type memAudit struct{ tx memTx }

func (r *memAudit) Append(ctx context.Context, entry *domain.AuditLogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c := *entry
	c.OldValue = domain.CloneMap(entry.OldValue)
	c.NewValue = domain.CloneMap(entry.NewValue)
	return r.tx.write(func(txn *memdb.Txn) error {
		return txn.Insert(tableAudit, &auditRow{
			ID: c.ID, OrgID: c.OrgID, EntityType: c.EntityType, EntityID: c.EntityID, Seq: r.tx.store.nextSeq(), Entry: &c,
		})
	})
}

func (r *memAudit) ListByEntity(ctx context.Context, orgID, entityType, entityID string) ([]domain.AuditLogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rows []*auditRow
	err := r.tx.read(func(txn *memdb.Txn) error {
		it, err := txn.Get(tableAudit, "entity", entityType, entityID)
		if err != nil {
			return err
		}
		for obj := it.Next(); obj != nil; obj = it.Next() {
			if row := obj.(*auditRow); row.OrgID == orgID {
				rows = append(rows, row)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Seq < rows[j].Seq })
	out := make([]domain.AuditLogEntry, 0, len(rows))
	for _, row := range rows {
		entry := *row.Entry
		entry.OldValue = domain.CloneMap(row.Entry.OldValue)
		entry.NewValue = domain.CloneMap(row.Entry.NewValue)
		out = append(out, entry)
	}
	return out, nil
}

type memDirectory struct{ tx memTx }

func (r *memDirectory) MemberExists(ctx context.Context, orgID, id string) (bool, error) {
	member, err := r.GetMemberByID(ctx, orgID, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return member.Active, nil
}

func (r *memDirectory) TeamExists(ctx context.Context, orgID, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	found := false
	err := r.tx.read(func(txn *memdb.Txn) error {
		raw, err := txn.First(tableTeams, "id", id)
		if err != nil {
			return err
		}
		if raw != nil {
			row := raw.(*teamRow)
			found = row.OrgID == orgID && row.Team.IsActive
		}
		return nil
	})
	return found, err
}

func (r *memDirectory) GetMemberByID(ctx context.Context, orgID, id string) (*domain.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out *domain.Member
	err := r.tx.read(func(txn *memdb.Txn) error {
		raw, err := txn.First(tableMembers, "id", id)
		if err != nil {
			return err
		}
		if raw == nil || raw.(*memberRow).OrgID != orgID {
			return pgx.ErrNoRows
		}
		c := *raw.(*memberRow).Member
		out = &c
		return nil
	})
	return out, err
}

func (r *memDirectory) GetMemberByEmail(ctx context.Context, email string) (*domain.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out *domain.Member
	err := r.tx.read(func(txn *memdb.Txn) error {
		raw, err := txn.First(tableMembers, "email", strings.TrimSpace(email))
		if err != nil {
			return err
		}
		if raw == nil {
			return pgx.ErrNoRows
		}
		c := *raw.(*memberRow).Member
		out = &c
		return nil
	})
	return out, err
}

type memPolicies struct{ tx memTx }

func (r *memPolicies) FindActive(ctx context.Context, orgID string, priority domain.Priority) (*domain.SLAPolicy, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var best *policyRow
	err := r.tx.read(func(txn *memdb.Txn) error {
		it, err := txn.Get(tablePolicies, "org", orgID)
		if err != nil {
			return err
		}
		for obj := it.Next(); obj != nil; obj = it.Next() {
			row := obj.(*policyRow)
			if !row.Policy.IsActive || row.Policy.Priority != priority {
				continue
			}
			if best == nil || row.Seq > best.Seq {
				best = row
			}
		}
		return nil
	})
	if err != nil || best == nil {
		return nil, err
	}
	c := *best.Policy
	return &c, nil
}

func cloneStr(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
