package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/hometour/api/internal/auth"
	"github.com/hometour/api/internal/middleware"
)

// AuthHandler answers ForwardAuth checks from the API gateway.
type AuthHandler struct {
	verifier auth.TokenVerifier
}

func NewAuthHandler(verifier auth.TokenVerifier) *AuthHandler {
	return &AuthHandler{verifier: verifier}
}

// Verify handles GET /auth/verify. It returns 200 with X-User-* headers for
// a valid bearer token and 401 otherwise.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	token, ok := auth.BearerToken(c.Get(fiber.HeaderAuthorization))
	if !ok || h.verifier == nil {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	claims, err := h.verifier.Validate(token)
	if err != nil {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	c.Set(middleware.HeaderUserID, claims.Identity())
	c.Set(middleware.HeaderUserEmail, claims.Email)
	c.Set(middleware.HeaderUserName, claims.Name)
	return c.SendStatus(fiber.StatusOK)
}
