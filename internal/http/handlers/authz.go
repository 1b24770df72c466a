package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"storefront/internal/domain"
	applog "storefront/internal/log"
	"storefront/internal/services"
)

// bearer reads the token from the Authorization header, falling back to the
// "token" cookie browsers get from the login call.
func bearer(c *fiber.Ctx) string {
	h := c.Get(fiber.HeaderAuthorization)
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return c.Cookies("token")
}

// RequireUser verifies the bearer token and stores its claims under
// Locals("user"); the log package picks up Locals("user_id").
func RequireUser(auth *services.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := bearer(c)
		if raw == "" {
			return fail(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		}
		claims, err := auth.Verify(raw)
		if err != nil {
			applog.Security(c, "auth.token.invalid", map[string]any{"reason": err.Error()})
			return fail(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token", nil)
		}
		c.Locals("user", claims)
		c.Locals("user_id", claims.UserID)
		return c.Next()
	}
}

// RequireAdmin runs after RequireUser.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := currentUser(c)
		if claims == nil || claims.Role != domain.RoleAdmin {
			applog.Security(c, "access.denied.admin", nil)
			return fail(c, fiber.StatusForbidden, "FORBIDDEN", "access denied", nil)
		}
		return c.Next()
	}
}

func currentUser(c *fiber.Ctx) *services.Claims {
	claims, _ := c.Locals("user").(*services.Claims)
	return claims
}

// userID is only called behind RequireUser.
func userID(c *fiber.Ctx) string {
	if claims := currentUser(c); claims != nil {
		return claims.UserID
	}
	return ""
}
