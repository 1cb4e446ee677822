package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/hometour/api/internal/auth"
	"github.com/hometour/api/internal/client"
	"github.com/hometour/api/internal/config"
	"github.com/hometour/api/internal/handler"
	"github.com/hometour/api/internal/media"
	"github.com/hometour/api/internal/middleware"
	"github.com/hometour/api/internal/router"
	"github.com/hometour/api/internal/service"
	ws "github.com/hometour/api/internal/websocket"
	"github.com/hometour/api/internal/worker"
)

func main() {
	// .env is optional; real deployments set the environment directly
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available, tour jobs will get mock ids until it is: %v", err)
	}

	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	validate := validator.New()

	hub := ws.NewHub()
	go hub.Run()

	// External clients
	generationClient := client.NewGenerationClient(&cfg.Generation)
	visionClient := client.NewVisionClient(&cfg.Vision)

	// Storage is optional; uploads and publishing report NOT_CONFIGURED without it
	var storage client.StorageClient
	if cfg.Storage.AccessKeyID != "" && cfg.Storage.SecretAccessKey != "" && cfg.Storage.Bucket != "" {
		s3Storage, err := client.NewS3Storage(&cfg.Storage)
		if err != nil {
			log.Printf("Warning: storage client not initialized: %v", err)
		} else {
			storage = s3Storage
		}
	} else {
		log.Println("Info: object storage not configured")
	}

	// Media pipeline
	ffmpeg := media.NewFFmpeg(media.ExecRunner{}, &cfg.Media)
	var publisher media.Publisher
	if storage != nil {
		publisher = storage
	}
	pipeline := media.NewPipeline(ffmpeg, generationClient, publisher, &cfg.Media)

	// Services
	jobQueue := service.NewRedisJobQueue(redisClient, asynqClient)
	tourService := service.NewTourService(jobQueue, validate, cfg.Upload.MaxFiles)
	promptService := service.NewPromptService(cfg.Video.Duration)
	clipService := service.NewClipService(generationClient, visionClient, storage, ffmpeg, promptService, cfg.Media.WorkDir)
	uploadService := service.NewUploadService(storage, cfg.Upload.MaxFileSize, cfg.Upload.MaxFiles)

	// Auth: OIDC first when an issuer is set, then the shared-secret tokens
	var verifiers []auth.TokenVerifier
	if cfg.OIDC.Issuer != "" {
		oidc, err := auth.NewOIDCVerifier(ctx, &cfg.OIDC)
		if err != nil {
			log.Printf("Warning: OIDC verifier not initialized: %v", err)
		} else {
			verifiers = append(verifiers, oidc)
		}
	}
	if cfg.JWT.Secret != "" {
		verifiers = append(verifiers, auth.NewHMACVerifier(&cfg.JWT))
	}
	verifier := auth.NewChain(verifiers...)

	var apiAuth fiber.Handler
	if cfg.Gateway.Enabled {
		log.Println("Info: gateway mode enabled, trusting X-User-* headers")
		apiAuth = middleware.GatewayAuthMiddleware()
	} else {
		apiAuth = middleware.NewAuthMiddleware(verifier).Authenticate()
	}

	handlers := router.Handlers{
		Health: handler.NewHealthHandler(map[string]handler.HealthCheck{
			"redis": func(ctx context.Context) bool { return redisClient.Ping(ctx).Err() == nil },
			"queue": tourService.QueueHealthy,
			"generation": func(context.Context) bool {
				return generationClient.IsConfigured()
			},
			"vision": func(context.Context) bool {
				return visionClient.IsConfigured()
			},
			"storage": func(context.Context) bool { return storage != nil },
		}),
		Auth:   handler.NewAuthHandler(verifier),
		Tour:   handler.NewTourHandler(tourService),
		Clip:   handler.NewClipHandler(clipService, validate),
		Upload: handler.NewUploadHandler(uploadService),
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: router.ErrorHandler,
		BodyLimit:    int(cfg.Upload.MaxFileSize)*cfg.Upload.MaxFiles + 1024*1024,
		// room-video blocks on generation for minutes
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 20 * time.Minute,
	})

	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	router.Register(app, handlers, router.Options{
		APIAuth:     apiAuth,
		RateLimiter: middleware.NewRateLimiter(redisClient),
		Limits:      cfg.RateLimit,
		Hub:         hub,
	})

	tourWorker := worker.NewTourWorker(jobQueue, pipeline, hub)
	workerServer := startWorkerServer(cfg, redisOpt, tourWorker)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		if workerServer != nil {
			workerServer.Shutdown()
		}
		hub.Stop()
	}()

	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// startWorkerServer starts consuming tour jobs in the background. It returns
// nil when the server could not start, for example when Redis is down.
func startWorkerServer(cfg *config.Config, redisOpt asynq.RedisClientOpt, tourWorker *worker.TourWorker) *asynq.Server {
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
		Queues: map[string]int{
			service.QueueTours: 1,
		},
		LogLevel: asynqLogLevel(cfg.Server.LogLevel),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeTourAssemble, tourWorker.ProcessTask)

	if err := srv.Start(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
		return nil
	}
	log.Printf("Worker consuming %q with concurrency %d", service.QueueTours, cfg.Worker.Concurrency)
	return srv
}

func asynqLogLevel(level string) asynq.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return asynq.DebugLevel
	case "warn":
		return asynq.WarnLevel
	case "error":
		return asynq.ErrorLevel
	default:
		return asynq.InfoLevel
	}
}
