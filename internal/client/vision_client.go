package client

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/hometour/api/internal/config"
	"github.com/hometour/api/internal/model"
)

const visionSystemPrompt = `You are an expert at analyzing interior room photographs for real estate virtual tours.
Your task is to provide extremely detailed spatial descriptions focusing on:
1. Exact object positions (left wall, right wall, center, back wall, etc.)
2. Spatial relationships between objects (facing, adjacent to, across from, etc.)
3. Architectural features (doors, windows, fireplaces, built-ins)

Be precise and use clear directional language. This analysis will be used to generate video prompts that must maintain spatial consistency.`

const visionUserPrompt = `Analyze this photo and provide:

1. EXTERIOR OR INTERIOR: Is this an EXTERIOR shot (outside of house, front yard, backyard) or INTERIOR (inside a room)? Answer: "EXTERIOR" or "INTERIOR"

2. ROOM TYPE: What type of space is this? (e.g., "exterior front", "living room", "kitchen", "bedroom", "bathroom", "dining room")

3. ROOM SIZE: Is this a SMALL space (bedroom, bathroom, closet, small office) or LARGE space (living room, kitchen, great room, exterior)? Answer: "SMALL" or "LARGE"

4. SPATIAL LAYOUT: Describe the exact positions of ALL visible objects and architectural features using precise directional language:
   - What's on the LEFT?
   - What's on the RIGHT?
   - What's in the CENTER?
   - What's in the BACK?

5. OBJECT LIST: List each major object with its exact position (format: "object - position")

Be extremely specific about positions.`

var (
	reExterior      = regexp.MustCompile(`(?i)EXTERIOR OR INTERIOR:?\**\s*"?(EXTERIOR|INTERIOR)`)
	reRoomType      = regexp.MustCompile(`(?i)ROOM TYPE:?\**[ \t]*([^\n]+)`)
	reRoomSize      = regexp.MustCompile(`(?i)ROOM SIZE:?\**\s*"?(SMALL|LARGE)`)
	reSpatial       = regexp.MustCompile(`(?is)SPATIAL LAYOUT:?\**\s*(.+?)(?:OBJECT LIST|$)`)
	reObjectList    = regexp.MustCompile(`(?is)OBJECT LIST:?\**\s*(.+)$`)
	reObjectLine    = regexp.MustCompile(`^[-•*]?\s*(.+?)\s*[-–—:]\s*(.+)$`)
	reTrailingIndex = regexp.MustCompile(`[\s*#]*\d+\.?[\s*#]*$`)
	reLeadingIndex  = regexp.MustCompile(`^\d+[.)]\s*`)

	smallRoomKeywords = []string{"bedroom", "bathroom", "closet", "office", "laundry", "powder"}
)

// RoomAnalyzer describes a photo well enough to keep generated motion
// spatially consistent.
type RoomAnalyzer interface {
	AnalyzeRoom(ctx context.Context, imageURL string) *model.RoomAnalysis
	IsConfigured() bool
}

// VisionClient implements RoomAnalyzer with an OpenAI-compatible chat model
type VisionClient struct {
	client *openai.Client
	model  string
}

// NewVisionClient creates a vision client. An empty API key yields an
// unconfigured client whose AnalyzeRoom always returns nil.
func NewVisionClient(cfg *config.VisionConfig) *VisionClient {
	c := &VisionClient{model: cfg.Model}
	if c.model == "" {
		c.model = "gpt-5-nano"
	}
	if cfg.APIKey == "" {
		log.Println("[Vision] OPENAI_API_KEY not set, vision analysis disabled")
		return c
	}

	oaCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oaCfg.BaseURL = cfg.BaseURL
	}
	c.client = openai.NewClientWithConfig(oaCfg)
	return c
}

// IsConfigured returns true if the client has valid configuration
func (c *VisionClient) IsConfigured() bool {
	return c.client != nil
}

// AnalyzeRoom asks the model for a structured description of the photo.
// Failures are logged and reported as a nil analysis.
func (c *VisionClient) AnalyzeRoom(ctx context.Context, imageURL string) *model.RoomAnalysis {
	if c.client == nil {
		return nil
	}

	log.Printf("[Vision] analyzing %s with %s", imageURL, c.model)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: visionSystemPrompt,
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: visionUserPrompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    imageURL,
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
		MaxCompletionTokens: 1000,
	})
	if err != nil {
		log.Printf("[Vision] analysis failed: %v", err)
		return nil
	}
	if len(resp.Choices) == 0 {
		log.Println("[Vision] analysis returned no choices")
		return nil
	}

	analysis := ParseRoomAnalysis(resp.Choices[0].Message.Content)
	log.Printf("[Vision] ✓ %s (exterior=%v small=%v objects=%d)",
		analysis.RoomType, analysis.IsExterior, analysis.IsSmallRoom, len(analysis.Objects))
	return analysis
}

// ParseRoomAnalysis extracts the numbered sections of a vision answer.
func ParseRoomAnalysis(raw string) *model.RoomAnalysis {
	analysis := &model.RoomAnalysis{
		RoomType:           "room",
		SpatialDescription: raw,
		RawAnalysis:        raw,
	}

	if m := reExterior.FindStringSubmatch(raw); m != nil {
		analysis.IsExterior = strings.EqualFold(m[1], "EXTERIOR")
	}

	if m := reRoomType.FindStringSubmatch(raw); m != nil {
		roomType := strings.Trim(strings.TrimSpace(m[1]), `"*`)
		if roomType != "" {
			analysis.RoomType = roomType
		}
	}

	if m := reRoomSize.FindStringSubmatch(raw); m != nil {
		analysis.IsSmallRoom = strings.EqualFold(m[1], "SMALL")
	}
	lowerType := strings.ToLower(analysis.RoomType)
	for _, kw := range smallRoomKeywords {
		if strings.Contains(lowerType, kw) {
			analysis.IsSmallRoom = true
			break
		}
	}

	if m := reSpatial.FindStringSubmatch(raw); m != nil {
		spatial := strings.TrimSpace(reTrailingIndex.ReplaceAllString(strings.TrimSpace(m[1]), ""))
		if spatial != "" {
			analysis.SpatialDescription = spatial
		}
	}

	if m := reObjectList.FindStringSubmatch(raw); m != nil {
		for _, line := range strings.Split(m[1], "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			om := reObjectLine.FindStringSubmatch(line)
			if om == nil {
				continue
			}
			name := reLeadingIndex.ReplaceAllString(strings.Trim(om[1], "* "), "")
			position := strings.Trim(om[2], "* ")
			if name == "" || position == "" {
				continue
			}
			analysis.Objects = append(analysis.Objects, model.RoomObject{Name: name, Position: position})
		}
	}

	return analysis
}

// SpatialPrompt renders an analysis as a prompt preamble.
func SpatialPrompt(analysis *model.RoomAnalysis) string {
	if analysis == nil {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "This is a %s. ", analysis.RoomType)

	if len(analysis.Objects) > 0 {
		parts := make([]string, 0, len(analysis.Objects))
		for _, obj := range analysis.Objects {
			parts = append(parts, fmt.Sprintf("%s on %s", obj.Name, obj.Position))
		}
		fmt.Fprintf(&b, "Visible elements: %s. ", strings.Join(parts, ", "))
	}

	b.WriteString("Keep all these objects in their exact positions throughout the video.")
	return b.String()
}
