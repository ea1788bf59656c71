package repository

import (
	"context"

	"github.com/itsm-core/incident-engine/internal/domain"
)

type timelineRepository struct {
	conn
}

func (r *timelineRepository) Append(ctx context.Context, entry *domain.TimelineEntry) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	const query = `
        INSERT INTO incident_timeline (id, org_id, incident_id, action, previous_status, new_status, actor_id, metadata, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	_, err := r.q.Exec(ctx, query,
		entry.ID,
		entry.OrgID,
		entry.IncidentID,
		entry.Action,
		entry.PreviousStatus,
		entry.NewStatus,
		entry.ActorID,
		entry.Metadata,
		entry.CreatedAt,
	)
	return err
}

func (r *timelineRepository) ListByIncident(ctx context.Context, orgID, incidentID string) ([]domain.TimelineEntry, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	const query = `
        SELECT id, org_id, incident_id, action, previous_status, new_status, actor_id, metadata, created_at
        FROM incident_timeline WHERE org_id=$1 AND incident_id=$2 ORDER BY created_at ASC, seq ASC`
	rows, err := r.q.Query(ctx, query, orgID, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.TimelineEntry
	for rows.Next() {
		var entry domain.TimelineEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.OrgID,
			&entry.IncidentID,
			&entry.Action,
			&entry.PreviousStatus,
			&entry.NewStatus,
			&entry.ActorID,
			&entry.Metadata,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

type auditLogRepository struct {
	conn
}

func (r *auditLogRepository) Append(ctx context.Context, entry *domain.AuditLogEntry) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	const query = `
        INSERT INTO audit_log (id, org_id, entity_type, entity_id, action, actor_id, old_value, new_value, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	_, err := r.q.Exec(ctx, query,
		entry.ID,
		entry.OrgID,
		entry.EntityType,
		entry.EntityID,
		entry.Action,
		entry.ActorID,
		entry.OldValue,
		entry.NewValue,
		entry.CreatedAt,
	)
	return err
}

func (r *auditLogRepository) ListByEntity(ctx context.Context, orgID, entityType, entityID string) ([]domain.AuditLogEntry, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	const query = `
        SELECT id, org_id, entity_type, entity_id, action, actor_id, old_value, new_value, created_at
        FROM audit_log WHERE org_id=$1 AND entity_type=$2 AND entity_id=$3 ORDER BY created_at ASC, seq ASC`
	rows, err := r.q.Query(ctx, query, orgID, entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.AuditLogEntry
	for rows.Next() {
		var entry domain.AuditLogEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.OrgID,
			&entry.EntityType,
			&entry.EntityID,
			&entry.Action,
			&entry.ActorID,
			&entry.OldValue,
			&entry.NewValue,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
