package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/itsm-core/incident-engine/internal/domain"
	"github.com/itsm-core/incident-engine/internal/repository"
	apperrors "github.com/itsm-core/incident-engine/pkg/util/errorutil"
)

const principalKey = "principal"

// Principal is the authenticated member acting on the request. OrgID scopes every
// query the request makes.
type Principal struct {
	MemberID string
	OrgID    string
	Role     domain.MemberRole
}

// Authenticator resolves bearer tokens to active members of the token's org.
type Authenticator struct {
	tokens    *TokenManager
	directory repository.DirectoryRepository
}

func NewAuthenticator(tokens *TokenManager, directory repository.DirectoryRepository) *Authenticator {
	return &Authenticator{tokens: tokens, directory: directory}
}

// Authenticate is the fiber middleware. The role is re-read from the directory so
// demotions take effect before the token expires.
func (a *Authenticator) Authenticate(c *fiber.Ctx) error {
	raw, err := bearerToken(c.Get(fiber.HeaderAuthorization))
	if err != nil {
		return err
	}
	claims, err := a.tokens.ParseToken(raw)
	if err != nil {
		return apperrors.NewUnauthorized("invalid or expired token")
	}

	member, err := a.directory.GetMemberByID(c.UserContext(), claims.OrgID, claims.MemberID)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return apperrors.NewUnauthorized("member not found")
	case err != nil:
		return apperrors.MapError(err)
	case !member.Active:
		return apperrors.NewUnauthorized("member inactive")
	}

	c.Locals(principalKey, &Principal{MemberID: member.ID, OrgID: member.OrgID, Role: member.Role})
	return c.Next()
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", apperrors.NewUnauthorized("missing authorization header")
	}
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", apperrors.NewUnauthorized("malformed authorization header")
	}
	return token, nil
}

// PrincipalFromContext returns the principal stored by Authenticate.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	principal, ok := c.Locals(principalKey).(*Principal)
	return principal, ok && principal != nil
}
