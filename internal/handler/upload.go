package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/hometour/api/internal/model"
	"github.com/hometour/api/internal/service"
	"github.com/hometour/api/pkg/response"
)

// photosField is the multipart field carrying the listing photos.
const photosField = "photos"

type UploadHandler struct {
	service *service.UploadService
}

func NewUploadHandler(svc *service.UploadService) *UploadHandler {
	return &UploadHandler{service: svc}
}

// Photos handles POST /api/upload
// @Summary      Upload listing photos
// @Description  Store room photos and classify each from its file name
// @Tags         Upload
// @Accept       multipart/form-data
// @Produce      json
// @Param        photos formData file true "JPG, PNG or WebP photos"
// @Success      201 {object} model.UploadResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      503 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/upload [post]
func (h *UploadHandler) Photos(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return response.ValidationError(c, "Expected a multipart form with photos", nil)
	}

	photos, err := h.service.UploadPhotos(c.Context(), form.File[photosField])
	if err != nil {
		if handled, werr := validationFailed(c, err); handled {
			return werr
		}
		if errors.Is(err, service.ErrStorageNotConfigured) {
			return response.NotConfigured(c, err.Error())
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Created(c, model.UploadResponse{Success: true, Photos: photos})
}
