package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/itsm-core/incident-engine/internal/domain"
)

type slaPolicyRepository struct {
	conn
}

func (r *slaPolicyRepository) FindActive(ctx context.Context, orgID string, priority domain.Priority) (*domain.SLAPolicy, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	const query = `
        SELECT id, org_id, name, priority, response_minutes, resolution_minutes, is_active
        FROM sla_policies WHERE org_id=$1 AND priority=$2 AND is_active
        ORDER BY updated_at DESC LIMIT 1`
	var policy domain.SLAPolicy
	err := r.q.QueryRow(ctx, query, orgID, priority).Scan(
		&policy.ID,
		&policy.OrgID,
		&policy.Name,
		&policy.Priority,
		&policy.ResponseMinutes,
		&policy.ResolutionMinutes,
		&policy.IsActive,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &policy, nil
}
