package media

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/hometour/api/internal/config"
	"github.com/hometour/api/internal/model"
)

// Stage names a pipeline step for progress and error reporting.
type Stage string

const (
	StageFetch       Stage = "fetch"
	StageOverlay     Stage = "overlay"
	StageConcatenate Stage = "concatenate"
	StageEndScreen   Stage = "end_screen"
	StageCompress    Stage = "compress"
	StageVertical    Stage = "vertical"
	StagePublish     Stage = "publish"
)

var (
	ErrClipDownload  = errors.New("clip download failed")
	ErrConcatenation = errors.New("concatenation failed")
	ErrNoClips       = errors.New("no clips to assemble")
	ErrNoPublisher   = errors.New("no storage configured for publishing")
)

// StageError tags a failure with the stage that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Fetcher downloads a remote clip to a local path.
type Fetcher interface {
	DownloadToPath(ctx context.Context, rawURL, destPath string) (string, error)
}

// Publisher stores a local file and returns its public URL.
type Publisher interface {
	UploadFile(ctx context.Context, path, key, contentType string) (string, error)
}

// ProgressFunc receives the percent complete and a short step label.
type ProgressFunc func(percent int, step string)

// Pipeline assembles generated room clips into the three published tour videos.
type Pipeline struct {
	ffmpeg           *FFmpeg
	fetcher          Fetcher
	publisher        Publisher
	workDir          string
	overlaySeconds   int
	endScreenSeconds int
}

func NewPipeline(ff *FFmpeg, fetcher Fetcher, publisher Publisher, cfg *config.MediaConfig) *Pipeline {
	p := &Pipeline{
		ffmpeg:           ff,
		fetcher:          fetcher,
		publisher:        publisher,
		workDir:          cfg.WorkDir,
		overlaySeconds:   cfg.OverlaySeconds,
		endScreenSeconds: cfg.EndScreenSeconds,
	}
	if p.workDir == "" {
		p.workDir = "./uploads"
	}
	if p.overlaySeconds <= 0 {
		p.overlaySeconds = 3
	}
	if p.endScreenSeconds <= 0 {
		p.endScreenSeconds = 3
	}
	return p
}

// Run executes every stage for one tour. Intermediate files are removed
// before Run returns, whether it succeeds or not.
func (p *Pipeline) Run(ctx context.Context, runID string, clips []model.VideoClip, info model.PropertyInfo, progress ProgressFunc) (*model.TourResult, error) {
	if len(clips) == 0 {
		return nil, &StageError{Stage: StageFetch, Err: ErrNoClips}
	}
	if p.publisher == nil {
		return nil, &StageError{Stage: StagePublish, Err: ErrNoPublisher}
	}
	if progress == nil {
		progress = func(int, string) {}
	}

	ws, err := NewWorkspace(p.workDir, runID)
	if err != nil {
		return nil, &StageError{Stage: StageFetch, Err: err}
	}
	defer ws.Cleanup()

	start := time.Now()
	log.Printf("[Pipeline] run %s: %d clip(s) for %q", runID, len(clips), info.Address)

	ordered := make([]model.VideoClip, len(clips))
	copy(ordered, clips)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	progress(10, "Downloading clips")
	paths, err := p.fetch(ctx, ws, ordered)
	if err != nil {
		return nil, &StageError{Stage: StageFetch, Err: err}
	}

	if info.HasOverlay() {
		progress(30, "Adding property overlay")
		overlaid := ws.Path("overlay", "mp4")
		if err := p.ffmpeg.OverlayPropertyInfo(ctx, paths[0], overlaid, info, p.overlaySeconds); err != nil {
			return nil, &StageError{Stage: StageOverlay, Err: err}
		}
		paths[0] = overlaid
	}

	progress(45, "Concatenating clips")
	master := ws.Path("master", "mp4")
	if err := p.ffmpeg.Concatenate(ctx, paths, ws.Path("concat", "txt"), master); err != nil {
		return nil, &StageError{Stage: StageConcatenate, Err: fmt.Errorf("%w: %w", ErrConcatenation, err)}
	}

	horizontal := master
	if info.HasAgent() {
		progress(60, "Adding agent end screen")
		horizontal, err = p.appendEndScreen(ctx, ws, master, info)
		if err != nil {
			return nil, &StageError{Stage: StageEndScreen, Err: err}
		}
	}

	progress(70, "Creating compressed version")
	compressed := ws.Path("compressed", "mp4")
	if err := p.ffmpeg.Compress(ctx, horizontal, compressed); err != nil {
		return nil, &StageError{Stage: StageCompress, Err: err}
	}

	progress(80, "Creating vertical version")
	vertical := ws.Path("vertical", "mp4")
	if err := p.ffmpeg.Verticalize(ctx, horizontal, vertical); err != nil {
		return nil, &StageError{Stage: StageVertical, Err: err}
	}

	progress(90, "Uploading videos")
	result, err := p.publish(ctx, runID, horizontal, compressed, vertical)
	if err != nil {
		return nil, &StageError{Stage: StagePublish, Err: err}
	}

	log.Printf("[Pipeline] run %s: ✓ done in %s", runID, time.Since(start).Round(time.Millisecond))
	return result, nil
}

// fetch downloads all clips concurrently; the first failure cancels the rest.
func (p *Pipeline) fetch(ctx context.Context, ws *Workspace, clips []model.VideoClip) ([]string, error) {
	paths := make([]string, len(clips))
	for i := range clips {
		paths[i] = ws.Path(fmt.Sprintf("clip%02d", i), "mp4")
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, clip := range clips {
		i, clip := i, clip
		g.Go(func() error {
			if _, err := p.fetcher.DownloadToPath(gctx, clip.URL, paths[i]); err != nil {
				return fmt.Errorf("%w: clip order %d: %w", ErrClipDownload, clip.Order, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Printf("[Pipeline] fetched %d clip(s)", len(clips))
	return paths, nil
}

func (p *Pipeline) appendEndScreen(ctx context.Context, ws *Workspace, master string, info model.PropertyInfo) (string, error) {
	stream, err := p.ffmpeg.Probe(ctx, master)
	if err != nil {
		log.Printf("[Pipeline] probe %s failed, using %dx%d: %v", master, stream.Width, stream.Height, err)
	}

	card := ws.Path("endcard", "mp4")
	if err := p.ffmpeg.RenderEndCard(ctx, card, info, p.endScreenSeconds, stream); err != nil {
		return "", err
	}

	out := ws.Path("final", "mp4")
	if err := p.ffmpeg.Concatenate(ctx, []string{master, card}, ws.Path("endcard-concat", "txt"), out); err != nil {
		return "", fmt.Errorf("%w: %w", ErrConcatenation, err)
	}
	return out, nil
}

// publish uploads the three outputs concurrently under
// tours/, tours/compressed/ and tours/vertical/.
func (p *Pipeline) publish(ctx context.Context, runID, horizontal, compressed, vertical string) (*model.TourResult, error) {
	uniqueID := fmt.Sprintf("%s-%s", runID, ulid.Make().String())
	result := &model.TourResult{}

	uploads := []struct {
		path string
		key  string
		dest *string
	}{
		{horizontal, PublishKey("tours", uniqueID, "mp4"), &result.Horizontal},
		{compressed, PublishKey("tours/compressed", uniqueID, "mp4"), &result.Compressed},
		{vertical, PublishKey("tours/vertical", uniqueID, "mp4"), &result.Vertical},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, u := range uploads {
		u := u
		g.Go(func() error {
			url, err := p.publisher.UploadFile(gctx, u.path, u.key, "video/mp4")
			if err != nil {
				return fmt.Errorf("upload %s: %w", u.key, err)
			}
			*u.dest = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// PublishKey returns "<purpose>/<uniqueID>.<ext>".
func PublishKey(purpose, uniqueID, ext string) string {
	return fmt.Sprintf("%s/%s.%s", purpose, uniqueID, ext)
}
