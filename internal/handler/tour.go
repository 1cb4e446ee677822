package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/hometour/api/internal/model"
	"github.com/hometour/api/internal/service"
	"github.com/hometour/api/pkg/response"
)

type TourHandler struct {
	service *service.TourService
}

func NewTourHandler(svc *service.TourService) *TourHandler {
	return &TourHandler{service: svc}
}

// FullTour handles POST /api/generate/full-tour
// @Summary      Assemble a full property tour
// @Description  Queue the stitching of generated room clips into the published tour videos
// @Tags         Tour
// @Accept       json
// @Produce      json
// @Param        request body model.GenerateFullTourRequest true "Clips and listing details"
// @Success      202 {object} model.EnqueueResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/generate/full-tour [post]
func (h *TourHandler) FullTour(c *fiber.Ctx) error {
	var req model.GenerateFullTourRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	result, err := h.service.Enqueue(c.Context(), &req)
	if err != nil {
		if handled, werr := validationFailed(c, err); handled {
			return werr
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/status/:jobId
// @Summary      Get tour job status
// @Tags         Tour
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.JobStatusResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      410 {object} response.ErrorResponse
// @Failure      503 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/status/{jobId} [get]
func (h *TourHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	status, err := h.service.GetStatus(c.Context(), jobID)
	switch {
	case err == nil:
		return response.OK(c, model.JobStatusResponse{Success: true, JobStatus: *status})
	case errors.Is(err, service.ErrJobNotFound):
		return response.NotFound(c, "Job not found")
	case errors.Is(err, service.ErrInvalidJob):
		return response.InvalidJob(c, "Job was accepted while the queue was down and was never processed")
	case errors.Is(err, service.ErrQueueUnavailable):
		return response.QueueUnavailable(c, "Video processing service unavailable")
	default:
		return response.ServiceError(c, err.Error())
	}
}
