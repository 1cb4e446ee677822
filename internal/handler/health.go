package handler

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/hometour/api/pkg/response"
)

const healthTimeout = 2 * time.Second

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) bool

type HealthResponse struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	Timestamp string          `json:"timestamp"`
	Services  map[string]bool `json:"services"`
}

type HealthHandler struct {
	checks map[string]HealthCheck
}

func NewHealthHandler(checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Health handles GET /api/health
// @Summary      Service health
// @Tags         Health
// @Produce      json
// @Success      200 {object} HealthResponse
// @Router       /api/health [get]
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), healthTimeout)
	defer cancel()

	services := make(map[string]bool, len(h.checks))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, check := range h.checks {
		name, check := name, check
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok := check(ctx)
			mu.Lock()
			services[name] = ok
			mu.Unlock()
		}()
	}
	wg.Wait()

	return response.OK(c, HealthResponse{
		Success:   true,
		Message:   "Real estate video API is running",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  services,
	})
}
