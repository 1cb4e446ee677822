package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/hometour/api/internal/client"
	"github.com/hometour/api/internal/model"
)

var (
	ErrGeneratorNotConfigured = errors.New("video generation is not configured")
	ErrStorageNotConfigured   = errors.New("storage is not configured")
)

// DurationProber reads the length of a local video.
type DurationProber interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

// ClipService generates a single room clip and stores it.
type ClipService struct {
	generator client.VideoGenerator
	analyzer  client.RoomAnalyzer
	storage   client.StorageClient
	prober    DurationProber
	prompts   *PromptService
	workDir   string
}

func NewClipService(
	generator client.VideoGenerator,
	analyzer client.RoomAnalyzer,
	storage client.StorageClient,
	prober DurationProber,
	prompts *PromptService,
	workDir string,
) *ClipService {
	return &ClipService{
		generator: generator,
		analyzer:  analyzer,
		storage:   storage,
		prober:    prober,
		prompts:   prompts,
		workDir:   workDir,
	}
}

// BuildPrompt returns the caller's prompt when given. Otherwise the scene is
// classified from the file name, falling back to vision analysis when the
// name says nothing, and the matching motion rules are applied.
func (s *ClipService) BuildPrompt(ctx context.Context, req *model.GenerateRoomVideoRequest) string {
	if p := strings.TrimSpace(req.Prompt); p != "" {
		return p
	}

	detection := model.RoomDetection{RoomType: model.RoomUnknown}
	if req.Filename != "" {
		detection = DetectRoomFromFilename(req.Filename)
	}

	var analysis *model.RoomAnalysis
	if detection.RoomType == model.RoomUnknown && s.analyzer != nil && s.analyzer.IsConfigured() {
		analysis = s.analyzer.AnalyzeRoom(ctx, req.ImageURL)
		if analysis != nil {
			detection.IsExterior = analysis.IsExterior
			detection.IsSmallRoom = analysis.IsSmallRoom
		}
	}

	category := CategoryFor(req.Order, detection.IsExterior, detection.IsSmallRoom)
	log.Printf("[Clip] order=%d room=%s category=%s", req.Order, detection.RoomType, category)

	if req.RoomDescription != "" || analysis == nil {
		return s.prompts.RoomPrompt(category, req.RoomDescription)
	}
	return client.SpatialPrompt(analysis) + " " + s.prompts.RoomPrompt(category, "")
}

// GenerateRoomVideo runs generation, re-hosts the clip under videos/clips/
// and reports its duration. The local copy is always removed.
func (s *ClipService) GenerateRoomVideo(ctx context.Context, req *model.GenerateRoomVideoRequest) (*model.GenerateRoomVideoResponse, error) {
	if s.generator == nil || !s.generator.IsConfigured() {
		return nil, ErrGeneratorNotConfigured
	}
	if s.storage == nil {
		return nil, ErrStorageNotConfigured
	}

	prompt := s.BuildPrompt(ctx, req)

	videoURL, err := s.generator.GenerateVideo(ctx, req.ImageURL, prompt)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.workDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	localPath := filepath.Join(s.workDir, fmt.Sprintf("room-%s.mp4", uuid.New().String()))
	defer func() {
		if err := os.Remove(localPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("[Clip] cleanup %s: %v", localPath, err)
		}
	}()

	if _, err := s.generator.DownloadToPath(ctx, videoURL, localPath); err != nil {
		return nil, err
	}

	publicURL, err := s.storage.UploadFile(ctx, localPath, client.GenerateUniqueKey("videos/clips", "mp4"), "video/mp4")
	if err != nil {
		return nil, fmt.Errorf("failed to store clip: %w", err)
	}

	var duration float64
	if s.prober != nil {
		duration, err = s.prober.ProbeDuration(ctx, localPath)
		if err != nil {
			log.Printf("[Clip] duration probe failed, reporting 0: %v", err)
			duration = 0
		}
	}

	log.Printf("[Clip] ✓ room %d stored at %s", req.Order, publicURL)
	return &model.GenerateRoomVideoResponse{
		Success:  true,
		VideoURL: publicURL,
		Duration: duration,
		Order:    req.Order,
	}, nil
}
