package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// conn binds a querier (pool or transaction) to the per-statement timeout.
type conn struct {
	q       querier
	timeout time.Duration
}

func (c conn) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

type pgRepositories struct {
	incidents IncidentRepository
	workflows WorkflowRepository
	tasks     TaskRepository
	timeline  TimelineRepository
	audit     AuditLogRepository
}

func newPGRepositories(c conn) *pgRepositories {
	return &pgRepositories{
		incidents: &incidentRepository{conn: c},
		workflows: &workflowRepository{conn: c},
		tasks:     &taskRepository{conn: c},
		timeline:  &timelineRepository{conn: c},
		audit:     &auditLogRepository{conn: c},
	}
}

func (r *pgRepositories) Incidents() IncidentRepository { return r.incidents }
func (r *pgRepositories) Workflows() WorkflowRepository { return r.workflows }
func (r *pgRepositories) Tasks() TaskRepository         { return r.tasks }
func (r *pgRepositories) Timeline() TimelineRepository  { return r.timeline }
func (r *pgRepositories) AuditLog() AuditLogRepository  { return r.audit }

// PostgresStore implements Store over a pgx pool.
type PostgresStore struct {
	*pgRepositories
	pool      *pgxpool.Pool
	timeout   time.Duration
	directory DirectoryRepository
	policies  SLAPolicyRepository
}

// NewPostgresStore builds the store. queryTimeout bounds every statement; zero disables it.
func NewPostgresStore(pool *pgxpool.Pool, queryTimeout time.Duration) *PostgresStore {
	c := conn{q: pool, timeout: queryTimeout}
	return &PostgresStore{
		pgRepositories: newPGRepositories(c),
		pool:           pool,
		timeout:        queryTimeout,
		directory:      &directoryRepository{conn: c},
		policies:       &slaPolicyRepository{conn: c},
	}
}

func (s *PostgresStore) Directory() DirectoryRepository    { return s.directory }
func (s *PostgresStore) SLAPolicies() SLAPolicyRepository { return s.policies }

// Transaction runs fn in a database transaction, committing only when fn returns nil.
func (s *PostgresStore) Transaction(ctx context.Context, fn TxFunc) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, newPGRepositories(conn{q: tx, timeout: s.timeout}))
	})
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	c := conn{timeout: s.timeout}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return s.pool.Ping(ctx)
}
