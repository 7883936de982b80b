package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/datashare/internal/services"
	"github.com/localnerve/datashare/internal/types"
)

// UserKey is the Locals key holding the caller's *services.Identity.
const UserKey = "user"

// Auth validates the caller's credential and stores the identity in context.
// The authorizer session cookie is preferred; a bearer token is accepted
// otherwise.
func Auth(validator services.IdentityValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		credential := c.Cookies("cookie_session")
		if credential == "" {
			credential = bearerToken(c.Get(fiber.HeaderAuthorization))
		}
		if credential == "" {
			return types.NewAuthorizationError("auth.credential",
				"Authorizer cookie \"cookie_session\" or bearer token not found")
		}

		identity, err := validator.Validate(c.UserContext(), credential)
		if err != nil {
			return types.NewAuthorizationError("auth.session", "%s", fmt.Sprintf("Invalid session: %v", err))
		}

		c.Locals(UserKey, identity)
		return c.Next()
	}
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
