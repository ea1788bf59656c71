package repository

import (
	"context"

	"github.com/itsm-core/incident-engine/internal/domain"
	"github.com/itsm-core/incident-engine/pkg/util/errorutil"
)

const incidentColumns = `id, org_id, ticket_number, title, description, status, priority, category_id, channel,
       reporter_id, assignee_id, team_id, sla_response_due, sla_response_at, sla_response_met,
       sla_resolution_due, sla_resolution_met, sla_paused_at, sla_total_paused_mins, on_hold_reason,
       on_hold_until, resolution_summary, closure_code, resolved_at, closed_at, version, created_by,
       created_at, updated_at`

type incidentRepository struct {
	conn
}

func (r *incidentRepository) Create(ctx context.Context, incident *domain.Incident) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	const query = `
        INSERT INTO incidents (` + incidentColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29)`
	_, err := r.q.Exec(ctx, query,
		incident.ID,
		incident.OrgID,
		incident.TicketNumber,
		incident.Title,
		incident.Description,
		incident.Status,
		incident.Priority,
		incident.CategoryID,
		incident.Channel,
		incident.ReporterID,
		incident.AssigneeID,
		incident.TeamID,
		incident.SLAResponseDue,
		incident.SLAResponseAt,
		incident.SLAResponseMet,
		incident.SLAResolutionDue,
		incident.SLAResolutionMet,
		incident.SLAPausedAt,
		incident.SLATotalPausedMins,
		incident.OnHoldReason,
		incident.OnHoldUntil,
		incident.ResolutionSummary,
		incident.ClosureCode,
		incident.ResolvedAt,
		incident.ClosedAt,
		incident.Version,
		incident.CreatedBy,
		incident.CreatedAt,
		incident.UpdatedAt,
	)
	return err
}

func (r *incidentRepository) Update(ctx context.Context, incident *domain.Incident, expectedVersion int) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	const query = `
        UPDATE incidents SET title=$1, description=$2, status=$3, priority=$4, category_id=$5, channel=$6,
            assignee_id=$7, team_id=$8, sla_response_due=$9, sla_response_at=$10, sla_response_met=$11,
            sla_resolution_due=$12, sla_resolution_met=$13, sla_paused_at=$14, sla_total_paused_mins=$15,
            on_hold_reason=$16, on_hold_until=$17, resolution_summary=$18, closure_code=$19,
            resolved_at=$20, closed_at=$21, updated_at=$22, version=version+1
        WHERE id=$23 AND org_id=$24 AND version=$25`
	cmd, err := r.q.Exec(ctx, query,
		incident.Title,
		incident.Description,
		incident.Status,
		incident.Priority,
		incident.CategoryID,
		incident.Channel,
		incident.AssigneeID,
		incident.TeamID,
		incident.SLAResponseDue,
		incident.SLAResponseAt,
		incident.SLAResponseMet,
		incident.SLAResolutionDue,
		incident.SLAResolutionMet,
		incident.SLAPausedAt,
		incident.SLATotalPausedMins,
		incident.OnHoldReason,
		incident.OnHoldUntil,
		incident.ResolutionSummary,
		incident.ClosureCode,
		incident.ResolvedAt,
		incident.ClosedAt,
		incident.UpdatedAt,
		incident.ID,
		incident.OrgID,
		expectedVersion,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return r.missingOrConflict(ctx, `SELECT 1 FROM incidents WHERE id=$1 AND org_id=$2`, incident.ID, incident.OrgID)
	}
	incident.Version = expectedVersion + 1
	return nil
}

func (r *incidentRepository) GetByID(ctx context.Context, orgID, id string) (*domain.Incident, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id=$1 AND org_id=$2`
	var inc domain.Incident
	if err := r.q.QueryRow(ctx, query, id, orgID).Scan(
		&inc.ID,
		&inc.OrgID,
		&inc.TicketNumber,
		&inc.Title,
		&inc.Description,
		&inc.Status,
		&inc.Priority,
		&inc.CategoryID,
		&inc.Channel,
		&inc.ReporterID,
		&inc.AssigneeID,
		&inc.TeamID,
		&inc.SLAResponseDue,
		&inc.SLAResponseAt,
		&inc.SLAResponseMet,
		&inc.SLAResolutionDue,
		&inc.SLAResolutionMet,
		&inc.SLAPausedAt,
		&inc.SLATotalPausedMins,
		&inc.OnHoldReason,
		&inc.OnHoldUntil,
		&inc.ResolutionSummary,
		&inc.ClosureCode,
		&inc.ResolvedAt,
		&inc.ClosedAt,
		&inc.Version,
		&inc.CreatedBy,
		&inc.CreatedAt,
		&inc.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &inc, nil
}

// missingOrConflict distinguishes a stale version from a missing row after an update touched nothing.
func (c conn) missingOrConflict(ctx context.Context, query string, args ...any) error {
	var one int
	if err := c.q.QueryRow(ctx, query, args...).Scan(&one); err != nil {
		return err
	}
	return errorutil.ErrConflict
}
