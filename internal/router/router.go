package router

import (
	"errors"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/hometour/api/internal/config"
	"github.com/hometour/api/internal/handler"
	"github.com/hometour/api/internal/middleware"
	ws "github.com/hometour/api/internal/websocket"
	"github.com/hometour/api/pkg/response"
)

// Handlers are the HTTP endpoints mounted by Register.
type Handlers struct {
	Health *handler.HealthHandler
	Auth   *handler.AuthHandler
	Tour   *handler.TourHandler
	Clip   *handler.ClipHandler
	Upload *handler.UploadHandler
}

// Options carries the cross-cutting pieces routes are wrapped in.
type Options struct {
	APIAuth     fiber.Handler
	RateLimiter *middleware.RateLimiter
	Limits      config.RateLimitConfig
	Hub         *ws.Hub
}

// Register mounts every route on app.
func Register(app *fiber.App, h Handlers, opts Options) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// public
	app.Get("/api/health", h.Health.Health)
	app.Get("/auth/verify", h.Auth.Verify)

	api := app.Group("/api", opts.APIAuth)

	generate := api.Group("/generate")
	generate.Post("/room-video", opts.RateLimiter.GenerateLimit(opts.Limits.GeneratePerHour), h.Clip.RoomVideo)
	generate.Post("/full-tour", opts.RateLimiter.TourLimit(opts.Limits.TourPerHour), h.Tour.FullTour)

	api.Get("/status/:jobId", h.Tour.Status)
	api.Post("/upload", opts.RateLimiter.UploadLimit(opts.Limits.UploadPerHour), h.Upload.Photos)

	if opts.Hub == nil {
		return
	}
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		opts.Hub.HandleConnection(c, c.Params("jobId"))
	}))
}

// ErrorHandler renders unhandled errors in the API's error envelope.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}

	return response.Error(c, code, response.CodeServiceError, message, nil)
}
