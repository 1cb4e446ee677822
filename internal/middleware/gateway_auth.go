package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/hometour/api/pkg/response"
)

// Identity headers set by the gateway after calling /auth/verify.
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserEmail = "X-User-Email"
	HeaderUserName  = "X-User-Name"
)

// GatewayAuthMiddleware trusts the identity headers forwarded by the
// gateway. Only enable it when the service is not reachable directly.
func GatewayAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get(HeaderUserID)
		if userID == "" {
			return response.Unauthorized(c, "Missing user identity headers")
		}

		c.Locals(LocalUserID, userID)
		c.Locals(LocalEmail, c.Get(HeaderUserEmail))
		c.Locals(LocalName, c.Get(HeaderUserName))

		return c.Next()
	}
}
