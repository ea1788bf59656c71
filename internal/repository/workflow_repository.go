package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/itsm-core/incident-engine/internal/domain"
)

const workflowColumns = `id, org_id, name, type, template_id, entity_type, entity_id, incident_id, status,
       steps, current_step_id, context, completed_at, version, created_by, created_at, updated_at`

type workflowRepository struct {
	conn
}

func (r *workflowRepository) Create(ctx context.Context, wf *domain.Workflow) error {
	steps, wfContext, err := encodeWorkflowDocs(wf)
	if err != nil {
		return err
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	const query = `
        INSERT INTO workflows (` + workflowColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`
	_, err = r.q.Exec(ctx, query,
		wf.ID,
		wf.OrgID,
		wf.Name,
		wf.Type,
		wf.TemplateID,
		wf.EntityType,
		wf.EntityID,
		wf.IncidentID,
		wf.Status,
		steps,
		wf.CurrentStepID,
		wfContext,
		wf.CompletedAt,
		wf.Version,
		wf.CreatedBy,
		wf.CreatedAt,
		wf.UpdatedAt,
	)
	return err
}

func (r *workflowRepository) Update(ctx context.Context, wf *domain.Workflow, expectedVersion int) error {
	steps, wfContext, err := encodeWorkflowDocs(wf)
	if err != nil {
		return err
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	const query = `
        UPDATE workflows SET status=$1, steps=$2, current_step_id=$3, context=$4, completed_at=$5,
            updated_at=$6, version=version+1
        WHERE id=$7 AND org_id=$8 AND version=$9`
	cmd, err := r.q.Exec(ctx, query,
		wf.Status,
		steps,
		wf.CurrentStepID,
		wfContext,
		wf.CompletedAt,
		wf.UpdatedAt,
		wf.ID,
		wf.OrgID,
		expectedVersion,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return r.missingOrConflict(ctx, `SELECT 1 FROM workflows WHERE id=$1 AND org_id=$2`, wf.ID, wf.OrgID)
	}
	wf.Version = expectedVersion + 1
	return nil
}

func (r *workflowRepository) GetByID(ctx context.Context, orgID, id string) (*domain.Workflow, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id=$1 AND org_id=$2`
	rows, err := r.q.Query(ctx, query, id, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	workflows, err := scanWorkflows(rows)
	if err != nil {
		return nil, err
	}
	if len(workflows) == 0 {
		return nil, pgx.ErrNoRows
	}
	return &workflows[0], nil
}

func (r *workflowRepository) ListCreatedSince(ctx context.Context, orgID string, since time.Time) ([]domain.Workflow, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE org_id=$1 AND created_at >= $2 ORDER BY created_at ASC`
	rows, err := r.q.Query(ctx, query, orgID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWorkflows(rows)
}

func encodeWorkflowDocs(wf *domain.Workflow) ([]byte, []byte, error) {
	steps, err := json.Marshal(wf.Steps)
	if err != nil {
		return nil, nil, fmt.Errorf("encode workflow steps: %w", err)
	}
	wfContext, err := json.Marshal(wf.Context)
	if err != nil {
		return nil, nil, fmt.Errorf("encode workflow context: %w", err)
	}
	return steps, wfContext, nil
}

func scanWorkflows(rows pgx.Rows) ([]domain.Workflow, error) {
	var result []domain.Workflow
	for rows.Next() {
		var (
			wf        domain.Workflow
			steps     []byte
			wfContext []byte
		)
		if err := rows.Scan(
			&wf.ID,
			&wf.OrgID,
			&wf.Name,
			&wf.Type,
			&wf.TemplateID,
			&wf.EntityType,
			&wf.EntityID,
			&wf.IncidentID,
			&wf.Status,
			&steps,
			&wf.CurrentStepID,
			&wfContext,
			&wf.CompletedAt,
			&wf.Version,
			&wf.CreatedBy,
			&wf.CreatedAt,
			&wf.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(steps, &wf.Steps); err != nil {
			return nil, fmt.Errorf("decode workflow %s steps: %w", wf.ID, err)
		}
		if err := json.Unmarshal(wfContext, &wf.Context); err != nil {
			return nil, fmt.Errorf("decode workflow %s context: %w", wf.ID, err)
		}
		result = append(result, wf)
	}
	return result, rows.Err()
}
