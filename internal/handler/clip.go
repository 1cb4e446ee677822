package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/hometour/api/internal/client"
	"github.com/hometour/api/internal/model"
	"github.com/hometour/api/internal/service"
	"github.com/hometour/api/pkg/response"
)

type ClipHandler struct {
	service   *service.ClipService
	validator *validator.Validate
}

func NewClipHandler(svc *service.ClipService, v *validator.Validate) *ClipHandler {
	return &ClipHandler{
		service:   svc,
		validator: v,
	}
}

// RoomVideo handles POST /api/generate/room-video
// @Summary      Generate one room clip
// @Description  Turn a listing photo into a short walkthrough clip and store it
// @Tags         Generate
// @Accept       json
// @Produce      json
// @Param        request body model.GenerateRoomVideoRequest true "Photo and optional prompt"
// @Success      200 {object} model.GenerateRoomVideoResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Failure      503 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/generate/room-video [post]
func (h *ClipHandler) RoomVideo(c *fiber.Ctx) error {
	var req model.GenerateRoomVideoRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", service.FieldErrors(err))
	}

	result, err := h.service.GenerateRoomVideo(c.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrGeneratorNotConfigured), errors.Is(err, service.ErrStorageNotConfigured):
			return response.NotConfigured(c, err.Error())
		case errors.Is(err, client.ErrGenerationFailedAfterRetries),
			errors.Is(err, client.ErrGenerationFailed),
			errors.Is(err, client.ErrGenerationTimeout),
			errors.Is(err, client.ErrGenerationResultMissing),
			errors.Is(err, client.ErrDownload):
			return response.GenerationFailed(c, err.Error())
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}
