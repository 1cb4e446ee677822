package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/hometour/api/internal/service"
	"github.com/hometour/api/pkg/response"
)

// validationFailed writes a 400 for err when it is a validation problem and
// reports whether it did.
func validationFailed(c *fiber.Ctx, err error) (bool, error) {
	var verr *service.ValidationError
	if !errors.As(err, &verr) {
		return false, nil
	}
	return true, response.ValidationError(c, "Validation failed", verr.Fields)
}
