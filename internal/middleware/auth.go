package middleware

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/hometour/api/internal/auth"
	"github.com/hometour/api/pkg/response"
)

// Context locals set by the auth middlewares.
const (
	LocalUserID = "userId"
	LocalEmail  = "email"
	LocalName   = "name"
)

// AuthMiddleware authenticates bearer tokens against a verifier chain.
type AuthMiddleware struct {
	verifier auth.TokenVerifier
}

func NewAuthMiddleware(verifier auth.TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// Authenticate rejects requests without a valid bearer token.
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return response.Unauthorized(c, "Missing authorization header")
		}

		token, ok := auth.BearerToken(header)
		if !ok {
			return response.Unauthorized(c, "Invalid authorization header format")
		}

		if m.verifier == nil {
			return response.Unauthorized(c, "Authentication not configured")
		}

		claims, err := m.verifier.Validate(token)
		if err != nil {
			log.Printf("[Auth] rejected token from %s: %v", c.IP(), err)
			return response.Unauthorized(c, "Invalid or expired token")
		}

		c.Locals(LocalUserID, claims.Identity())
		c.Locals(LocalEmail, claims.Email)
		c.Locals(LocalName, claims.Name)
		return c.Next()
	}
}

// GetUserID extracts the authenticated user id from context
func GetUserID(c *fiber.Ctx) string {
	if userID, ok := c.Locals(LocalUserID).(string); ok {
		return userID
	}
	return ""
}
