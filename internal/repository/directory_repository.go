package repository

import (
	"context"

	"github.com/itsm-core/incident-engine/internal/domain"
)

type directoryRepository struct {
	conn
}

func (r *directoryRepository) MemberExists(ctx context.Context, orgID, id string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM members WHERE id=$1 AND org_id=$2 AND active_flag)`, id, orgID)
}

func (r *directoryRepository) TeamExists(ctx context.Context, orgID, id string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM teams WHERE id=$1 AND org_id=$2 AND is_active)`, id, orgID)
}

func (r *directoryRepository) exists(ctx context.Context, query string, args ...any) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var ok bool
	if err := r.q.QueryRow(ctx, query, args...).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (r *directoryRepository) GetMemberByID(ctx context.Context, orgID, id string) (*domain.Member, error) {
	return r.fetchMember(ctx, `
        SELECT id, org_id, name, email, password_hash, role, team_id, active_flag, created_at, updated_at
        FROM members WHERE id=$1 AND org_id=$2`, id, orgID)
}

func (r *directoryRepository) GetMemberByEmail(ctx context.Context, email string) (*domain.Member, error) {
	return r.fetchMember(ctx, `
        SELECT id, org_id, name, email, password_hash, role, team_id, active_flag, created_at, updated_at
        FROM members WHERE LOWER(email)=LOWER($1)`, email)
}

func (r *directoryRepository) fetchMember(ctx context.Context, query string, args ...any) (*domain.Member, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var member domain.Member
	if err := r.q.QueryRow(ctx, query, args...).Scan(
		&member.ID,
		&member.OrgID,
		&member.Name,
		&member.Email,
		&member.PasswordHash,
		&member.Role,
		&member.TeamID,
		&member.Active,
		&member.CreatedAt,
		&member.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &member, nil
}
