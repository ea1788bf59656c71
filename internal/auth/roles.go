package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/itsm-core/incident-engine/internal/domain"
	apperrors "github.com/itsm-core/incident-engine/pkg/util/errorutil"
)

// roleRank orders roles; a higher rank inherits everything below it.
var roleRank = map[domain.MemberRole]int{
	domain.MemberRoleAgent:    1,
	domain.MemberRoleTeamLead: 2,
	domain.MemberRoleAdmin:    3,
}

// Satisfies reports whether role is at least minimum. Unknown roles satisfy nothing.
func Satisfies(role, minimum domain.MemberRole) bool {
	have, ok := roleRank[role]
	if !ok {
		return false
	}
	return have >= roleRank[minimum]
}

// RequireAtLeast rejects principals ranked below minimum. It must run after Authenticate.
func RequireAtLeast(minimum domain.MemberRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !Satisfies(principal.Role, minimum) {
			return apperrors.NewForbidden("requires role " + string(minimum))
		}
		return c.Next()
	}
}
