package domain

import "time"

// MemberRole enumerates operator roles.
type MemberRole string

const (
	MemberRoleAgent    MemberRole = "agent"
	MemberRoleTeamLead MemberRole = "team_lead"
	MemberRoleAdmin    MemberRole = "admin"
)

// Member is an organization user who can own incidents and tasks.
type Member struct {
	ID           string
	OrgID        string
	Name         string
	Email        string
	PasswordHash string
	Role         MemberRole
	TeamID       *string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Team groups members inside an organization.
type Team struct {
	ID          string
	OrgID       string
	Name        string
	Description string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
