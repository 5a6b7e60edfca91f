package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/restaurant-api/internal/domain"
	apperrors "github.com/spec-kit/restaurant-api/pkg/util"
)

var errNoPrincipal = errors.New("role check without principal")

// CheckRole ensures the principal attached by Protect has one of the allowed
// roles. It must be composed after Protect; without a principal it fails
// with 401 rather than treating the caller as an anonymous non-member.
func CheckRole(roles ...domain.Role) fiber.Handler {
	allowedSet := make(map[domain.Role]struct{}, len(roles))
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		allowedSet[role] = struct{}{}
		names = append(names, string(role))
	}
	message := fmt.Sprintf("access denied - required roles: %s", strings.Join(names, ", "))

	return roleHandler(allowedSet, message)
}

// Admin is CheckRole for the admin role alone.
func Admin() fiber.Handler {
	return roleHandler(map[domain.Role]struct{}{domain.RoleAdmin: {}}, "access denied - admin role required")
}

func roleHandler(allowed map[domain.Role]struct{}, message string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthenticated(errNoPrincipal)
		}
		if _, exists := allowed[principal.User.Role]; !exists {
			return apperrors.NewForbidden(message)
		}
		return c.Next()
	}
}
