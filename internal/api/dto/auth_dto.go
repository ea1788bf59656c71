package dto

import (
	"time"

	"github.com/itsm-core/incident-engine/internal/domain"
)

// LoginRequest payload.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse carries an issued bearer token.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// MemberResponse is the public view of a member.
type MemberResponse struct {
	ID     string            `json:"id"`
	OrgID  string            `json:"orgId"`
	Name   string            `json:"name"`
	Email  string            `json:"email"`
	Role   domain.MemberRole `json:"role"`
	TeamID *string           `json:"teamId,omitempty"`
}

// NewMemberResponse maps a member.
func NewMemberResponse(m *domain.Member) MemberResponse {
	return MemberResponse{
		ID:     m.ID,
		OrgID:  m.OrgID,
		Name:   m.Name,
		Email:  m.Email,
		Role:   m.Role,
		TeamID: m.TeamID,
	}
}
