package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hometour/api/internal/config"
	"github.com/hometour/api/internal/model"
)

// fakeRunner pretends to be ffmpeg/ffprobe: it records every call, captures
// concat list contents and writes a placeholder output file.
type fakeRunner struct {
	mu          sync.Mutex
	calls       [][]string
	concatLists [][]string
	probeJSON   string
	fail        func(name string, args []string) error
}

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	r.mu.Lock()
	r.calls = append(r.calls, append([]string{name}, args...))
	r.mu.Unlock()

	if r.fail != nil {
		if err := r.fail(name, args); err != nil {
			return nil, err
		}
	}

	if strings.HasSuffix(name, "ffprobe") {
		if containsArg(args, "format=duration") {
			return []byte("6.041\n"), nil
		}
		if r.probeJSON != "" {
			return []byte(r.probeJSON), nil
		}
		return []byte(`{"streams":[{"codec_type":"video","width":1920,"height":1080,"r_frame_rate":"30/1"}]}`), nil
	}

	for i, a := range args {
		if a == "-i" && i+1 < len(args) && strings.HasSuffix(args[i+1], ".txt") {
			data, err := os.ReadFile(args[i+1])
			if err != nil {
				return nil, err
			}
			r.mu.Lock()
			r.concatLists = append(r.concatLists, strings.Split(strings.TrimSpace(string(data)), "\n"))
			r.mu.Unlock()
		}
	}

	out := args[len(args)-1]
	return nil, os.WriteFile(out, []byte("video"), 0o644)
}

func (r *fakeRunner) callsMatching(substr string) [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out [][]string
	for _, c := range r.calls {
		if strings.Contains(strings.Join(c, " "), substr) {
			out = append(out, c)
		}
	}
	return out
}

func containsArg(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}

func inputOf(call []string) string {
	for i, a := range call {
		if a == "-i" && i+1 < len(call) {
			return call[i+1]
		}
	}
	return ""
}

type fakeFetcher struct {
	mu      sync.Mutex
	fetched map[string]string
	failURL string
}

func (f *fakeFetcher) DownloadToPath(ctx context.Context, rawURL, destPath string) (string, error) {
	if rawURL == f.failURL {
		// leave a partial file behind like an interrupted download would
		_ = os.WriteFile(destPath, []byte("part"), 0o644)
		return "", errors.New("connection reset")
	}
	if err := os.WriteFile(destPath, []byte(rawURL), 0o644); err != nil {
		return "", err
	}
	f.mu.Lock()
	if f.fetched == nil {
		f.fetched = map[string]string{}
	}
	f.fetched[rawURL] = destPath
	f.mu.Unlock()
	return destPath, nil
}

type fakePublisher struct {
	mu      sync.Mutex
	keys    []string
	failKey string
}

func (p *fakePublisher) UploadFile(ctx context.Context, path, key, contentType string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("missing upload source: %w", err)
	}
	if p.failKey != "" && strings.HasPrefix(key, p.failKey) {
		return "", errors.New("access denied")
	}
	p.mu.Lock()
	p.keys = append(p.keys, key)
	p.mu.Unlock()
	return "https://cdn.test/" + key, nil
}

func newTestPipeline(t *testing.T, runner *fakeRunner, fetcher *fakeFetcher, publisher *fakePublisher) (*Pipeline, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "work")
	cfg := &config.MediaConfig{WorkDir: dir, Quality: 16, OverlaySeconds: 3, EndScreenSeconds: 3}
	return NewPipeline(NewFFmpeg(runner, cfg), fetcher, publisher, cfg), dir
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Empty(t, names, "intermediate files left behind")
}

var testClips = []model.VideoClip{
	{URL: "https://clips.test/b.mp4", Order: 1},
	{URL: "https://clips.test/c.mp4", Order: 2},
	{URL: "https://clips.test/a.mp4", Order: 0},
}

var fullInfo = model.PropertyInfo{
	Address:      "123 Main St, Springfield, IL 62704",
	Price:        "$450,000",
	AgentName:    "Jane Doe",
	AgentCompany: "Acme Realty",
	AgentPhone:   "555-0100",
}

func TestPipeline_Run(t *testing.T) {
	runner := &fakeRunner{}
	fetcher := &fakeFetcher{}
	publisher := &fakePublisher{}
	p, dir := newTestPipeline(t, runner, fetcher, publisher)

	var steps []int
	result, err := p.Run(context.Background(), "job1", testClips, fullInfo, func(pct int, step string) {
		steps = append(steps, pct)
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(result.Horizontal, "https://cdn.test/tours/job1-"))
	assert.True(t, strings.HasPrefix(result.Compressed, "https://cdn.test/tours/compressed/job1-"))
	assert.True(t, strings.HasPrefix(result.Vertical, "https://cdn.test/tours/vertical/job1-"))
	assert.Len(t, publisher.keys, 3)
	for _, k := range publisher.keys {
		assert.True(t, strings.HasSuffix(k, ".mp4"), k)
	}

	// overlay is applied to the lowest-order clip only
	overlays := runner.callsMatching("drawbox=")
	require.Len(t, overlays, 1)
	assert.Equal(t, fetcher.fetched["https://clips.test/a.mp4"], inputOf(overlays[0]))

	// first concat: overlaid a, then b, then c
	require.Len(t, runner.concatLists, 2)
	first := runner.concatLists[0]
	require.Len(t, first, 3)
	assert.Contains(t, first[0], "-overlay.mp4")
	assert.Contains(t, first[1], filepath.Base(fetcher.fetched["https://clips.test/b.mp4"]))
	assert.Contains(t, first[2], filepath.Base(fetcher.fetched["https://clips.test/c.mp4"]))

	// second concat appends the end card
	second := runner.concatLists[1]
	require.Len(t, second, 2)
	assert.Contains(t, second[0], "-master.mp4")
	assert.Contains(t, second[1], "-endcard.mp4")

	assert.Len(t, runner.callsMatching("-maxrate 3M"), 1)
	assert.Len(t, runner.callsMatching("scale=1080:1920"), 1)

	assert.IsIncreasing(t, steps)
	assertEmptyDir(t, dir)
}

func TestPipeline_SkipsOptionalStages(t *testing.T) {
	runner := &fakeRunner{}
	publisher := &fakePublisher{}
	p, dir := newTestPipeline(t, runner, &fakeFetcher{}, publisher)

	_, err := p.Run(context.Background(), "job2", testClips[:1], model.PropertyInfo{}, nil)
	require.NoError(t, err)

	assert.Empty(t, runner.callsMatching("drawbox="))
	assert.Empty(t, runner.callsMatching("lavfi"))
	assert.Len(t, runner.concatLists, 1)
	assert.Len(t, publisher.keys, 3)
	assertEmptyDir(t, dir)
}

func TestPipeline_FetchFailure(t *testing.T) {
	runner := &fakeRunner{}
	publisher := &fakePublisher{}
	p, dir := newTestPipeline(t, runner, &fakeFetcher{failURL: "https://clips.test/c.mp4"}, publisher)

	_, err := p.Run(context.Background(), "job3", testClips, fullInfo, nil)
	require.Error(t, err)

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, StageFetch, stageErr.Stage)
	assert.True(t, errors.Is(err, ErrClipDownload))
	assert.Contains(t, err.Error(), "clip order 2")

	runner.mu.Lock()
	assert.Empty(t, runner.calls, "no encoding after a failed fetch")
	runner.mu.Unlock()
	assert.Empty(t, publisher.keys)
	assertEmptyDir(t, dir)
}

func TestPipeline_ConcatFailure(t *testing.T) {
	runner := &fakeRunner{fail: func(name string, args []string) error {
		if containsArg(args, "concat") {
			return &ToolError{Tool: "ffmpeg", Stderr: "Unsafe file name", Err: errors.New("exit status 1")}
		}
		return nil
	}}
	p, dir := newTestPipeline(t, runner, &fakeFetcher{}, &fakePublisher{})

	_, err := p.Run(context.Background(), "job4", testClips, fullInfo, nil)
	require.Error(t, err)

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, StageConcatenate, stageErr.Stage)
	assert.True(t, errors.Is(err, ErrConcatenation))

	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, "Unsafe file name", toolErr.Stderr)
	assertEmptyDir(t, dir)
}

func TestPipeline_VerticalFailure(t *testing.T) {
	runner := &fakeRunner{fail: func(name string, args []string) error {
		if strings.Contains(strings.Join(args, " "), "scale=1080:1920") {
			return &ToolError{Tool: "ffmpeg", Err: errors.New("signal: killed")}
		}
		return nil
	}}
	p, dir := newTestPipeline(t, runner, &fakeFetcher{}, &fakePublisher{})

	_, err := p.Run(context.Background(), "job5", testClips, fullInfo, nil)

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, StageVertical, stageErr.Stage)
	assertEmptyDir(t, dir)
}

func TestPipeline_PublishFailure(t *testing.T) {
	p, dir := newTestPipeline(t, &fakeRunner{}, &fakeFetcher{}, &fakePublisher{failKey: "tours/vertical/"})

	_, err := p.Run(context.Background(), "job6", testClips, fullInfo, nil)

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, StagePublish, stageErr.Stage)
	assert.Contains(t, err.Error(), "access denied")
	assertEmptyDir(t, dir)
}

func TestPipeline_NoClips(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeRunner{}, &fakeFetcher{}, &fakePublisher{})

	_, err := p.Run(context.Background(), "job7", nil, fullInfo, nil)
	assert.True(t, errors.Is(err, ErrNoClips))
}

func TestPipeline_NoPublisher(t *testing.T) {
	runner := &fakeRunner{}
	cfg := &config.MediaConfig{WorkDir: t.TempDir()}
	p := NewPipeline(NewFFmpeg(runner, cfg), &fakeFetcher{}, nil, cfg)

	_, err := p.Run(context.Background(), "job8", []model.VideoClip{{URL: "https://clips.test/a.mp4"}}, fullInfo, nil)

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, StagePublish, stageErr.Stage)
	assert.True(t, errors.Is(err, ErrNoPublisher))
	assert.Empty(t, runner.calls)
}
