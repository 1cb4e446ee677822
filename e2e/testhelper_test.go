package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/hometour/api/internal/auth"
	"github.com/hometour/api/internal/client"
	"github.com/hometour/api/internal/config"
	"github.com/hometour/api/internal/handler"
	"github.com/hometour/api/internal/media"
	"github.com/hometour/api/internal/middleware"
	"github.com/hometour/api/internal/router"
	"github.com/hometour/api/internal/service"
)

const testJWTSecret = "test-secret-for-e2e"

// testApp holds the app plus the fakes tests poke at.
type testApp struct {
	app      *fiber.App
	redis    *miniredis.Miniredis
	queue    *service.RedisJobQueue
	enqueuer *captureEnqueuer
	storage  *memStorage
}

// appOptions tweaks setupApp for a single test.
type appOptions struct {
	generationURL string
	noStorage     bool
}

// captureEnqueuer stands in for the asynq client.
type captureEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
}

func (c *captureEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks = append(c.tasks, task)
	return &asynq.TaskInfo{Queue: service.QueueTours, Type: task.Type(), State: asynq.TaskStatePending}, nil
}

func (c *captureEnqueuer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tasks)
}

// memStorage keeps uploads in memory.
type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStorage() *memStorage {
	return &memStorage{objects: make(map[string][]byte)}
}

func (s *memStorage) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.objects[key] = data
	s.mu.Unlock()
	return s.GetPublicURL(key), nil
}

func (s *memStorage) UploadFile(ctx context.Context, path, key, contentType string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return s.Upload(ctx, key, bytes.NewReader(data), contentType)
}

func (s *memStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

func (s *memStorage) GetPublicURL(key string) string {
	return "https://cdn.hometour.test/" + key
}

func (s *memStorage) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	return keys
}

// setupApp builds the app the way main does, on miniredis and in-memory
// storage, with generation unconfigured.
func setupApp(t *testing.T) *testApp {
	return setupAppWith(t, appOptions{})
}

func setupAppWith(t *testing.T, opts appOptions) *testApp {
	t.Helper()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = redisClient.Close() })

	validate := validator.New()
	enqueuer := &captureEnqueuer{}
	workDir := t.TempDir()

	genCfg := &config.GenerationConfig{}
	if opts.generationURL != "" {
		genCfg = &config.GenerationConfig{
			APIKey:       "test-key",
			BaseURL:      opts.generationURL,
			PollInterval: 5 * time.Millisecond,
			PollTimeout:  time.Second,
			MaxAttempts:  3,
			RetryDelay:   time.Millisecond,
		}
	}
	generationClient := client.NewGenerationClient(genCfg)
	visionClient := client.NewVisionClient(&config.VisionConfig{})

	mem := newMemStorage()
	var storage client.StorageClient = mem
	if opts.noStorage {
		storage = nil
	}

	ffmpeg := media.NewFFmpeg(media.ExecRunner{}, &config.MediaConfig{WorkDir: workDir})

	jobQueue := service.NewRedisJobQueue(redisClient, enqueuer)
	tourService := service.NewTourService(jobQueue, validate, 15)
	clipService := service.NewClipService(generationClient, visionClient, storage, ffmpeg, service.NewPromptService(6), workDir)
	uploadService := service.NewUploadService(storage, 1024*1024, 5)

	verifier := auth.NewChain(auth.NewHMACVerifier(&config.JWTConfig{Secret: testJWTSecret}))

	app := fiber.New(fiber.Config{
		ErrorHandler: router.ErrorHandler,
		BodyLimit:    10 * 1024 * 1024,
	})

	router.Register(app, router.Handlers{
		Health: handler.NewHealthHandler(map[string]handler.HealthCheck{
			"redis":      func(ctx context.Context) bool { return redisClient.Ping(ctx).Err() == nil },
			"queue":      tourService.QueueHealthy,
			"generation": func(context.Context) bool { return generationClient.IsConfigured() },
			"vision":     func(context.Context) bool { return visionClient.IsConfigured() },
			"storage":    func(context.Context) bool { return storage != nil },
		}),
		Auth:   handler.NewAuthHandler(verifier),
		Tour:   handler.NewTourHandler(tourService),
		Clip:   handler.NewClipHandler(clipService, validate),
		Upload: handler.NewUploadHandler(uploadService),
	}, router.Options{
		APIAuth:     middleware.NewAuthMiddleware(verifier).Authenticate(),
		RateLimiter: middleware.NewRateLimiter(redisClient),
		// very high limits so tests don't get blocked
		Limits: config.RateLimitConfig{GeneratePerHour: 10000, TourPerHour: 10000, UploadPerHour: 10000},
	})

	return &testApp{
		app:      app,
		redis:    mr,
		queue:    jobQueue,
		enqueuer: enqueuer,
		storage:  mem,
	}
}

// generateToken issues an HMAC token for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	token, err := auth.NewHMACVerifier(&config.JWTConfig{Secret: testJWTSecret}).Issue("test-user-123", "test@example.com")
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return token
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated request.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	token := generateToken(t)
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// errorCode returns error.code from an error envelope.
func errorCode(t *testing.T, body map[string]interface{}) string {
	t.Helper()
	e, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error envelope, got %v", body)
	}
	return fmt.Sprint(e["code"])
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
