package auth

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsm-core/incident-engine/internal/domain"
	"github.com/itsm-core/incident-engine/internal/repository"
	apperrors "github.com/itsm-core/incident-engine/pkg/util/errorutil"
)

type stubDirectory struct {
	repository.DirectoryRepository
	members map[string]*domain.Member
}

func (s stubDirectory) GetMemberByID(_ context.Context, orgID, id string) (*domain.Member, error) {
	m, ok := s.members[id]
	if !ok || m.OrgID != orgID {
		return nil, pgx.ErrNoRows
	}
	return m, nil
}

func newAuthApp(t *testing.T, members ...*domain.Member) (*fiber.App, *TokenManager) {
	t.Helper()
	dir := stubDirectory{members: map[string]*domain.Member{}}
	for _, m := range members {
		dir.members[m.ID] = m
	}
	tokens := NewTokenManager("secret", "incident-engine", 5)
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).SendString(de.Code)
		},
	})
	authn := NewAuthenticator(tokens, dir)
	app.Get("/me", authn.Authenticate, func(c *fiber.Ctx) error {
		p, ok := PrincipalFromContext(c)
		require.True(t, ok)
		return c.SendString(p.OrgID + "/" + string(p.Role))
	})
	app.Get("/leads", authn.Authenticate, RequireAtLeast(domain.MemberRoleTeamLead), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app, tokens
}

func call(t *testing.T, app *fiber.App, path, header string) int {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodGet, path, nil)
	if header != "" {
		req.Header.Set(fiber.HeaderAuthorization, header)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestAuthenticate(t *testing.T) {
	agent := &domain.Member{ID: "m-agent", OrgID: "org-1", Role: domain.MemberRoleAgent, Active: true}
	lead := &domain.Member{ID: "m-lead", OrgID: "org-1", Role: domain.MemberRoleTeamLead, Active: true}
	gone := &domain.Member{ID: "m-gone", OrgID: "org-1", Role: domain.MemberRoleAdmin, Active: false}
	app, tokens := newAuthApp(t, agent, lead, gone)

	sign := func(m *domain.Member) string {
		token, _, err := tokens.GenerateToken(m)
		require.NoError(t, err)
		return "Bearer " + token
	}

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{name: "no header", path: "/me", want: fiber.StatusUnauthorized},
		{name: "basic scheme", path: "/me", header: "Basic abc", want: fiber.StatusUnauthorized},
		{name: "empty bearer", path: "/me", header: "Bearer ", want: fiber.StatusUnauthorized},
		{name: "garbage token", path: "/me", header: "Bearer abc.def.ghi", want: fiber.StatusUnauthorized},
		{name: "inactive member", path: "/me", header: sign(gone), want: fiber.StatusUnauthorized},
		{name: "unknown member", path: "/me", header: sign(&domain.Member{ID: "m-x", OrgID: "org-1"}), want: fiber.StatusUnauthorized},
		{name: "foreign org claim", path: "/me", header: sign(&domain.Member{ID: "m-agent", OrgID: "org-2"}), want: fiber.StatusUnauthorized},
		{name: "agent ok", path: "/me", header: sign(agent), want: fiber.StatusOK},
		{name: "agent below lead", path: "/leads", header: sign(agent), want: fiber.StatusForbidden},
		{name: "lead ok", path: "/leads", header: sign(lead), want: fiber.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, call(t, app, tc.path, tc.header))
		})
	}
}

func TestSatisfies(t *testing.T) {
	assert.True(t, Satisfies(domain.MemberRoleAdmin, domain.MemberRoleTeamLead))
	assert.True(t, Satisfies(domain.MemberRoleTeamLead, domain.MemberRoleTeamLead))
	assert.False(t, Satisfies(domain.MemberRoleAgent, domain.MemberRoleTeamLead))
	assert.False(t, Satisfies(domain.MemberRole("guest"), domain.MemberRoleAgent))
}
