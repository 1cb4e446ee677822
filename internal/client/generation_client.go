package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/hometour/api/internal/config"
)

var (
	ErrGenerationSubmit             = errors.New("generation submit failed")
	ErrGenerationResultMissing      = errors.New("generation result missing")
	ErrGenerationFailed             = errors.New("generation failed")
	ErrGenerationTimeout            = errors.New("generation timed out")
	ErrGenerationFailedAfterRetries = errors.New("generation failed after retries")
	ErrDownload                     = errors.New("download failed")
)

const (
	defaultPollInterval = 10 * time.Second
	defaultPollTimeout  = 5 * time.Minute
	defaultMaxAttempts  = 3
	defaultRetryDelay   = 5 * time.Second

	codeOK = 200
)

// Task states reported by the generation service
const (
	TaskStateQueuing    = "queuing"
	TaskStateProcessing = "processing"
	TaskStateGenerating = "generating"
	TaskStateSuccess    = "success"
	TaskStateFail       = "fail"
)

// VideoGenerator turns a photo and a prompt into a video URL.
type VideoGenerator interface {
	GenerateVideo(ctx context.Context, imageURL, prompt string) (string, error)
	DownloadToPath(ctx context.Context, rawURL, destPath string) (string, error)
	IsConfigured() bool
}

// GenerationClient implements VideoGenerator for the kie.ai task API
type GenerationClient struct {
	httpClient     *http.Client
	downloadClient *http.Client
	limiter        *rate.Limiter
	baseURL        string
	apiKey         string
	model          string
	mode           string
	pollInterval   time.Duration
	pollTimeout    time.Duration
	maxAttempts    int
	retryDelay     time.Duration
}

// GenerationTask is the polled state of a single generation task.
type GenerationTask struct {
	TaskID     string `json:"taskId"`
	State      string `json:"state"`
	ResultJSON string `json:"resultJson,omitempty"`
	FailCode   string `json:"failCode,omitempty"`
	FailMsg    string `json:"failMsg,omitempty"`
}

type createTaskRequest struct {
	Model string          `json:"model"`
	Input createTaskInput `json:"input"`
}

type createTaskInput struct {
	Prompt    string   `json:"prompt"`
	ImageURLs []string `json:"image_urls"`
	Mode      string   `json:"mode"`
}

type apiEnvelope struct {
	Code int             `json:"code"`
	Data json.RawMessage `json:"data"`
}

type taskResult struct {
	ResultURLs []string `json:"resultUrls"`
	VideoURL   string   `json:"videoUrl,omitempty"`
}

// NewGenerationClient creates a new generation API client
func NewGenerationClient(cfg *config.GenerationConfig) *GenerationClient {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	c := &GenerationClient{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		downloadClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		limiter:      rate.NewLimiter(limit, 1),
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		mode:         cfg.Mode,
		pollInterval: cfg.PollInterval,
		pollTimeout:  cfg.PollTimeout,
		maxAttempts:  cfg.MaxAttempts,
		retryDelay:   cfg.RetryDelay,
	}

	if c.pollInterval <= 0 {
		c.pollInterval = defaultPollInterval
	}
	if c.pollTimeout <= 0 {
		c.pollTimeout = defaultPollTimeout
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = defaultMaxAttempts
	}
	if c.retryDelay <= 0 {
		c.retryDelay = defaultRetryDelay
	}
	if c.mode == "" {
		c.mode = "normal"
	}

	return c
}

// IsConfigured returns true if the client has valid configuration
func (c *GenerationClient) IsConfigured() bool {
	return c.apiKey != "" && c.baseURL != ""
}

// GenerateVideo runs the full submit and poll cycle, retrying the whole
// cycle up to maxAttempts times with retryDelay between attempts.
func (c *GenerationClient) GenerateVideo(ctx context.Context, imageURL, prompt string) (string, error) {
	var lastErr error
	attempts := 0

	for attempts < c.maxAttempts {
		attempts++
		log.Printf("[Generation] attempt %d/%d for %s", attempts, c.maxAttempts, imageURL)

		videoURL, err := c.generateOnce(ctx, imageURL, prompt)
		if err == nil {
			log.Printf("[Generation] ✓ video ready: %s", videoURL)
			return videoURL, nil
		}
		lastErr = err
		log.Printf("[Generation] ✗ attempt %d/%d failed: %v", attempts, c.maxAttempts, err)

		if attempts == c.maxAttempts {
			break
		}
		if err := sleepContext(ctx, c.retryDelay); err != nil {
			lastErr = err
			break
		}
	}

	return "", fmt.Errorf("%w (%d attempts): %w", ErrGenerationFailedAfterRetries, attempts, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *GenerationClient) generateOnce(ctx context.Context, imageURL, prompt string) (string, error) {
	taskID, err := c.Submit(ctx, imageURL, prompt)
	if err != nil {
		return "", err
	}
	log.Printf("[Generation] task created: %s", taskID)

	return c.AwaitResult(ctx, taskID)
}

// Submit creates a generation task and returns its identifier
func (c *GenerationClient) Submit(ctx context.Context, imageURL, prompt string) (string, error) {
	body := createTaskRequest{
		Model: c.model,
		Input: createTaskInput{
			Prompt:    prompt,
			ImageURLs: []string{imageURL},
			Mode:      c.mode,
		},
	}

	var data struct {
		TaskID string `json:"taskId"`
	}
	if err := c.post(ctx, "/jobs/createTask", body, &data); err != nil {
		return "", fmt.Errorf("%w: %w", ErrGenerationSubmit, err)
	}
	if data.TaskID == "" {
		return "", fmt.Errorf("%w: response has no taskId", ErrGenerationSubmit)
	}

	return data.TaskID, nil
}

// GetTask fetches the current state of a generation task
func (c *GenerationClient) GetTask(ctx context.Context, taskID string) (*GenerationTask, error) {
	endpoint := "/jobs/recordInfo?taskId=" + url.QueryEscape(taskID)

	var task GenerationTask
	if err := c.get(ctx, endpoint, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// AwaitResult polls a task every pollInterval until it succeeds, fails, or
// pollTimeout elapses. Transient polling errors do not end the wait.
func (c *GenerationClient) AwaitResult(ctx context.Context, taskID string) (string, error) {
	pollCtx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()

	attempt := 0
	for {
		attempt++
		task, err := c.GetTask(pollCtx, taskID)
		switch {
		case err != nil:
			if pollCtx.Err() == nil {
				log.Printf("[Generation] poll #%d (task=%s) transient error: %v", attempt, taskID, err)
			}
		case task.State == TaskStateSuccess:
			return extractResultURL(task)
		case task.State == TaskStateFail:
			reason := task.FailMsg
			if reason == "" {
				reason = "unknown error"
			}
			return "", fmt.Errorf("%w: %s", ErrGenerationFailed, reason)
		default:
			log.Printf("[Generation] poll #%d (task=%s) state: %s", attempt, taskID, task.State)
		}

		select {
		case <-pollCtx.Done():
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("%w after %v (task=%s)", ErrGenerationTimeout, c.pollTimeout, taskID)
		case <-time.After(c.pollInterval):
		}
	}
}

// extractResultURL prefers videoUrl and falls back to the first resultUrls entry.
func extractResultURL(task *GenerationTask) (string, error) {
	if task.ResultJSON == "" {
		return "", fmt.Errorf("%w: no resultJson (task=%s)", ErrGenerationResultMissing, task.TaskID)
	}

	var result taskResult
	if err := json.Unmarshal([]byte(task.ResultJSON), &result); err != nil {
		return "", fmt.Errorf("%w: invalid resultJson: %v", ErrGenerationResultMissing, err)
	}

	if result.VideoURL != "" {
		return result.VideoURL, nil
	}
	if len(result.ResultURLs) > 0 && result.ResultURLs[0] != "" {
		return result.ResultURLs[0], nil
	}
	return "", fmt.Errorf("%w: no video URL in result (task=%s)", ErrGenerationResultMissing, task.TaskID)
}

// DownloadToPath streams a remote asset into destPath.
func (c *GenerationClient) DownloadToPath(ctx context.Context, rawURL, destPath string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDownload, err)
	}

	resp, err := c.downloadClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDownload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: %s returned status %d", ErrDownload, rawURL, resp.StatusCode)
	}

	f, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDownload, err)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return "", fmt.Errorf("%w: %w", ErrDownload, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrDownload, err)
	}

	return destPath, nil
}

// post sends a POST request with JSON body
func (c *GenerationClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// get sends a GET request and parses JSON response
func (c *GenerationClient) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// doRequest executes an HTTP request and unwraps the {code, msg, data} envelope.
// A non-200 application code is an error regardless of the HTTP status.
func (c *GenerationClient) doRequest(req *http.Request, result interface{}) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	log.Printf("[Generation] → %s %s", req.Method, req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	log.Printf("[Generation] ← %d %s %s", resp.StatusCode, req.Method, req.URL.Path)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("generation API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w (body: %s)", err, string(respBody))
	}

	if envelope.Code != codeOK {
		return fmt.Errorf("generation API error (code %d): %s", envelope.Code, string(respBody))
	}

	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return fmt.Errorf("generation API returned no data: %s", string(respBody))
	}

	if err := json.Unmarshal(envelope.Data, result); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}

	return nil
}
