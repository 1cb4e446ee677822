package service

import (
	"fmt"
	"strings"

	"github.com/hometour/api/internal/model"
)

// motionRules holds the camera direction for each scene category. "%d" is
// replaced with the clip duration in seconds.
var motionRules = map[model.SceneCategory][]string{
	model.SceneExterior: {
		"Exterior establishing shot with LATERAL camera movement only.",
		"Camera slides slowly LEFT TO RIGHT (or right to left) - moving PARALLEL to the building.",
		"DO NOT move the camera forward toward the building. DO NOT approach the house.",
		"The camera travels sideways, keeping constant distance from all structures.",
		"Very slow, smooth slide over %d seconds.",
		"DO NOT enter any doorways, windows, or openings. Stay completely outside.",
		"Windows and doors remain opaque - do not show or create interior rooms.",
		"Trees, plants, grass remain completely still - no wind effect.",
		"ABSOLUTE PROHIBITION: No ceiling fans (there are none outdoors), no interior elements.",
	},
	model.SceneSmallRoom: {
		"Simulate a person standing still in the center of the room, slowly rotating their head to look around.",
		"The camera rotates horizontally in place - like standing on a lazy susan that slowly turns.",
		"The viewer slowly turns their gaze from left to right across the visible room.",
		"Take the full %d seconds for this slow, smooth rotation.",
		"CRITICAL: Do NOT zoom in or out. Do NOT move the camera forward or backward.",
		"The camera position stays fixed - ONLY the viewing angle changes.",
		"No dolly, no push-in, no zoom - only rotation in place.",
		"ONLY allow existing ceiling fans already visible in the source image to spin their blades slowly.",
		"Do NOT add ceiling fans or light fixtures that are not in the source image.",
		"Towels, curtains, and all fabrics remain completely still with no air movement.",
	},
	model.SceneLargeRoom: {
		"Smooth camera movement through the space.",
		"Camera can gently move forward or pan across the room to showcase the space.",
		"Slow, cinematic movement taking the full %d seconds.",
		"Professional real estate walkthrough feel.",
		"ONLY allow existing ceiling fans already visible in the source image to spin their blades slowly.",
		"Do NOT add ceiling fans or light fixtures that are not in the source image.",
		"Towels, curtains, and all fabrics remain completely still with no air movement.",
	},
}

var commonConstraints = []string{
	"CRITICAL: Use ONLY elements visible in the source image.",
	"Do NOT add curtains, window treatments, furniture, or decorative elements.",
	"Do NOT create or imagine any elements not in the input image.",
	"Stop before revealing any area not visible in the input image.",
	"Maintain exact object positions and lighting from the input image.",
}

// PromptService turns a scene description into a camera-motion prompt.
type PromptService struct {
	duration int
}

func NewPromptService(durationSeconds int) *PromptService {
	if durationSeconds <= 0 {
		durationSeconds = 6
	}
	return &PromptService{duration: durationSeconds}
}

// CategoryFor picks the motion rules for a photo. The first photo of a
// listing is treated as the exterior establishing shot.
func CategoryFor(order int, isExterior, isSmallRoom bool) model.SceneCategory {
	switch {
	case order == 0 || isExterior:
		return model.SceneExterior
	case isSmallRoom:
		return model.SceneSmallRoom
	default:
		return model.SceneLargeRoom
	}
}

// RoomPrompt builds the full prompt: optional scene preamble, the category's
// motion rules, then the constraints shared by every category.
func (s *PromptService) RoomPrompt(category model.SceneCategory, sceneDescription string) string {
	rules, ok := motionRules[category]
	if !ok {
		rules = motionRules[model.SceneLargeRoom]
	}

	parts := make([]string, 0, len(rules)+len(commonConstraints)+2)
	if desc := strings.TrimSpace(sceneDescription); desc != "" {
		parts = append(parts,
			fmt.Sprintf("This scene contains: %s.", strings.TrimRight(desc, ". ")),
			"Keep all these elements in their exact positions.",
		)
	}
	for _, r := range rules {
		if strings.Contains(r, "%d") {
			r = fmt.Sprintf(r, s.duration)
		}
		parts = append(parts, r)
	}
	parts = append(parts, commonConstraints...)

	return strings.Join(parts, " ")
}

// Duration returns the clip length the prompts ask for.
func (s *PromptService) Duration() int {
	return s.duration
}
