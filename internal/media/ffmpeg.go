package media

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/hometour/api/internal/config"
	"github.com/hometour/api/internal/model"
)

const (
	VerticalWidth  = 1080
	VerticalHeight = 1920

	defaultWidth     = 1920
	defaultHeight    = 1080
	defaultFrameRate = "30"

	defaultSampleRate    = 44100
	defaultChannelLayout = "stereo"
)

// StreamInfo is what the end card needs to match the tour it is appended to.
type StreamInfo struct {
	Width     int
	Height    int
	FrameRate string

	HasAudio      bool
	SampleRate    int
	ChannelLayout string
}

// FFmpeg builds and runs the encoder commands used by the pipeline.
type FFmpeg struct {
	runner      Runner
	ffmpegPath  string
	ffprobePath string
	fontFile    string
	quality     int
}

func NewFFmpeg(runner Runner, cfg *config.MediaConfig) *FFmpeg {
	f := &FFmpeg{
		runner:      runner,
		ffmpegPath:  cfg.FFmpegPath,
		ffprobePath: cfg.FFprobePath,
		fontFile:    cfg.FontFile,
		quality:     cfg.Quality,
	}
	if f.ffmpegPath == "" {
		f.ffmpegPath = "ffmpeg"
	}
	if f.ffprobePath == "" {
		f.ffprobePath = "ffprobe"
	}
	if f.quality <= 0 {
		f.quality = 16
	}
	return f
}

func (f *FFmpeg) run(ctx context.Context, args ...string) error {
	full := append([]string{"-hide_banner", "-loglevel", "error"}, args...)
	log.Printf("[FFmpeg] %s %s", f.ffmpegPath, strings.Join(full, " "))
	_, err := f.runner.Run(ctx, f.ffmpegPath, full...)
	return err
}

// OverlayPropertyInfo burns the address and price into the first seconds of in.
func (f *FFmpeg) OverlayPropertyInfo(ctx context.Context, in, out string, info model.PropertyInfo, seconds int) error {
	return f.run(ctx, OverlayArgs(in, out, info, seconds, f.fontFile, f.quality)...)
}

// Concatenate joins inputs in order using the concat demuxer. The list file
// is written to listPath; the caller owns its removal.
func (f *FFmpeg) Concatenate(ctx context.Context, inputs []string, listPath, out string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("no clips to concatenate")
	}
	if err := WriteConcatList(listPath, inputs); err != nil {
		return err
	}
	return f.run(ctx, ConcatArgs(listPath, out, f.quality)...)
}

// RenderEndCard renders the agent card as a standalone clip shaped like the tour.
func (f *FFmpeg) RenderEndCard(ctx context.Context, out string, info model.PropertyInfo, seconds int, stream StreamInfo) error {
	return f.run(ctx, EndCardArgs(out, info, seconds, stream, f.fontFile, f.quality)...)
}

// Compress produces the bitrate-capped listing version.
func (f *FFmpeg) Compress(ctx context.Context, in, out string) error {
	return f.run(ctx, CompressArgs(in, out)...)
}

// Verticalize letterboxes in into a 1080x1920 frame.
func (f *FFmpeg) Verticalize(ctx context.Context, in, out string) error {
	return f.run(ctx, VerticalArgs(in, out, f.quality)...)
}

// Probe reads the first video stream's geometry and frame rate and whether
// any audio stream exists. Missing values fall back to 1920x1080 at 30fps.
func (f *FFmpeg) Probe(ctx context.Context, path string) (StreamInfo, error) {
	info := StreamInfo{
		Width:         defaultWidth,
		Height:        defaultHeight,
		FrameRate:     defaultFrameRate,
		SampleRate:    defaultSampleRate,
		ChannelLayout: defaultChannelLayout,
	}

	out, err := f.runner.Run(ctx, f.ffprobePath,
		"-v", "error",
		"-show_entries", "stream=codec_type,width,height,r_frame_rate,sample_rate,channels,channel_layout",
		"-of", "json",
		path,
	)
	if err != nil {
		return info, err
	}

	var probe struct {
		Streams []struct {
			CodecType  string `json:"codec_type"`
			Width      int    `json:"width"`
			Height     int    `json:"height"`
			RFrameRate string `json:"r_frame_rate"`

			SampleRate    string `json:"sample_rate"`
			Channels      int    `json:"channels"`
			ChannelLayout string `json:"channel_layout"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(out, &probe); err != nil {
		return info, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	videoSeen, audioSeen := false, false
	for _, s := range probe.Streams {
		switch s.CodecType {
		case "audio":
			if audioSeen {
				continue
			}
			audioSeen = true
			info.HasAudio = true
			if rate, err := strconv.Atoi(s.SampleRate); err == nil && rate > 0 {
				info.SampleRate = rate
			}
			if layout := audioLayout(s.ChannelLayout, s.Channels); layout != "" {
				info.ChannelLayout = layout
			}
		case "video":
			if videoSeen {
				continue
			}
			videoSeen = true
			if s.Width > 0 && s.Height > 0 {
				info.Width, info.Height = s.Width, s.Height
			}
			if s.RFrameRate != "" && s.RFrameRate != "0/0" {
				info.FrameRate = s.RFrameRate
			}
		}
	}

	return info, nil
}

// audioLayout prefers the named layout and falls back to a channel count.
// Descriptions ffprobe prints for unnamed layouts, like "3 channels", are not
// valid layout names.
func audioLayout(name string, channels int) string {
	switch {
	case name != "" && !strings.ContainsAny(name, " :"):
		return name
	case channels == 1:
		return "mono"
	case channels == 2:
		return "stereo"
	case channels > 2:
		return fmt.Sprintf("%dc", channels)
	}
	return ""
}

// ProbeDuration returns the container duration in seconds.
func (f *FFmpeg) ProbeDuration(ctx context.Context, path string) (float64, error) {
	out, err := f.runner.Run(ctx, f.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration failed: %w", err)
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}
	return duration, nil
}

// WriteConcatList writes a concat demuxer list with one entry per input.
func WriteConcatList(listPath string, inputs []string) error {
	var b strings.Builder
	for _, p := range inputs {
		fmt.Fprintf(&b, "file %s\n", escapeConcatPath(p))
	}
	if err := os.WriteFile(listPath, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write concat list: %w", err)
	}
	return nil
}

func enableWindow(seconds int) string {
	return fmt.Sprintf("enable='between(t,0,%d)'", seconds)
}

func drawText(text, fontFile string, opts ...string) string {
	parts := []string{"drawtext=expansion=none"}
	if fontFile != "" {
		parts = append(parts, "fontfile="+escapeFilterPath(fontFile))
	}
	parts = append(parts, fmt.Sprintf("text='%s'", SanitizeDrawText(text)))
	parts = append(parts, opts...)
	return strings.Join(parts, ":")
}

// OverlayFilter returns the lower-third filter chain for the opening clip,
// or "" when there is nothing to show.
func OverlayFilter(info model.PropertyInfo, seconds int, fontFile string) string {
	street, city := SplitAddress(info.Address)
	price := strings.TrimSpace(info.Price)
	if street == "" && city == "" && price == "" {
		return ""
	}

	window := enableWindow(seconds)
	filters := []string{
		"drawbox=x=0:y=ih*3/4:w=iw:h=ih/4:color=black@0.55:t=fill:" + window,
	}
	if street != "" {
		filters = append(filters, drawText(street, fontFile,
			"fontcolor=white", "fontsize=h/16", "x=w/20", "y=h*3/4+h/28", window))
	}
	if city != "" {
		filters = append(filters, drawText(city, fontFile,
			"fontcolor=white@0.85", "fontsize=h/26", "x=w/20", "y=h*3/4+h/28+h/12", window))
	}
	if price != "" {
		filters = append(filters, drawText(price, fontFile,
			"fontcolor=white", "fontsize=h/16", "x=w-tw-w/20", "y=h*3/4+h/28", window))
	}
	return strings.Join(filters, ",")
}

// EndCardFilter centers the agent's name, company and phone on the card.
func EndCardFilter(info model.PropertyInfo, fontFile string) string {
	lines := []struct {
		text  string
		size  string
		color string
		y     string
	}{
		{info.AgentName, "h/12", "white", "h/2-h/6"},
		{info.AgentCompany, "h/20", "white@0.85", "h/2-h/40"},
		{info.AgentPhone, "h/20", "white@0.85", "h/2+h/12"},
	}

	filters := make([]string, 0, len(lines)+1)
	for _, l := range lines {
		if strings.TrimSpace(l.text) == "" {
			continue
		}
		filters = append(filters, drawText(l.text, fontFile,
			"fontcolor="+l.color, "fontsize="+l.size, "x=(w-tw)/2", "y="+l.y))
	}
	filters = append(filters, "format=yuv420p")
	return strings.Join(filters, ",")
}

// OverlayArgs re-encodes the video with the overlay and copies the audio.
func OverlayArgs(in, out string, info model.PropertyInfo, seconds int, fontFile string, quality int) []string {
	return []string{
		"-i", in,
		"-vf", OverlayFilter(info, seconds, fontFile),
		"-c:v", "libx264",
		"-preset", "slow",
		"-crf", strconv.Itoa(quality),
		"-c:a", "copy",
		"-y", out,
	}
}

func ConcatArgs(listPath, out string, quality int) []string {
	return []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c:v", "libx264",
		"-preset", "slow",
		"-crf", strconv.Itoa(quality),
		"-c:a", "aac",
		"-vf", "format=yuv420p",
		"-y", out,
	}
}

// EndCardArgs renders a solid card from lavfi sources. Silent audio is only
// added when the tour has audio, and uses the tour's sample rate and channel
// layout, so both concat inputs carry the same streams.
func EndCardArgs(out string, info model.PropertyInfo, seconds int, stream StreamInfo, fontFile string, quality int) []string {
	duration := strconv.Itoa(seconds)
	args := []string{
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=black:s=%dx%d:r=%s:d=%s", stream.Width, stream.Height, stream.FrameRate, duration),
	}
	if stream.SampleRate <= 0 {
		stream.SampleRate = defaultSampleRate
	}
	if stream.ChannelLayout == "" {
		stream.ChannelLayout = defaultChannelLayout
	}
	if stream.HasAudio {
		args = append(args,
			"-f", "lavfi",
			"-i", fmt.Sprintf("anullsrc=channel_layout=%s:sample_rate=%d", stream.ChannelLayout, stream.SampleRate),
		)
	}
	args = append(args,
		"-vf", EndCardFilter(info, fontFile),
		"-c:v", "libx264",
		"-preset", "slow",
		"-crf", strconv.Itoa(quality),
	)
	if stream.HasAudio {
		args = append(args, "-c:a", "aac", "-ar", strconv.Itoa(stream.SampleRate))
	}
	args = append(args, "-t", duration, "-y", out)
	return args
}

func CompressArgs(in, out string) []string {
	return []string{
		"-i", in,
		"-c:v", "libx264",
		"-b:v", "3M",
		"-maxrate", "3M",
		"-bufsize", "6M",
		"-c:a", "aac",
		"-b:a", "128k",
		"-vf", "format=yuv420p",
		"-y", out,
	}
}

func VerticalArgs(in, out string, quality int) []string {
	vf := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:black,format=yuv420p",
		VerticalWidth, VerticalHeight, VerticalWidth, VerticalHeight,
	)
	return []string{
		"-i", in,
		"-c:v", "libx264",
		"-preset", "slow",
		"-crf", strconv.Itoa(quality),
		"-c:a", "aac",
		"-vf", vf,
		"-y", out,
	}
}
