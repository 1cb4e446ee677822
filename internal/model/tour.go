package model

import "strings"

// VideoClip is a generated room clip ready for assembly.
type VideoClip struct {
	URL      string  `json:"url" validate:"required,url"`
	Order    int     `json:"order" validate:"gte=0"`
	Duration float64 `json:"duration" validate:"gte=0"`
}

// PropertyInfo is the listing metadata burned into the tour.
type PropertyInfo struct {
	Address      string `json:"address" validate:"required,max=200"`
	Price        string `json:"price" validate:"max=50"`
	AgentName    string `json:"agentName" validate:"max=100"`
	AgentCompany string `json:"agentCompany" validate:"max=100"`
	AgentPhone   string `json:"agentPhone" validate:"max=40"`
	LogoURL      string `json:"logoUrl,omitempty" validate:"omitempty,url"`
}

// HasOverlay reports whether there is any text for the opening overlay.
func (p PropertyInfo) HasOverlay() bool {
	return strings.TrimSpace(p.Address) != "" || strings.TrimSpace(p.Price) != ""
}

// HasAgent reports whether there is any text for the end screen.
func (p PropertyInfo) HasAgent() bool {
	return strings.TrimSpace(p.AgentName) != "" ||
		strings.TrimSpace(p.AgentCompany) != "" ||
		strings.TrimSpace(p.AgentPhone) != ""
}

// GenerateFullTourRequest is the body of POST /api/generate/full-tour
type GenerateFullTourRequest struct {
	Clips        []VideoClip  `json:"clips" validate:"required,min=1,dive"`
	PropertyInfo PropertyInfo `json:"propertyInfo"`
}

// GenerateRoomVideoRequest is the body of POST /api/generate/room-video
type GenerateRoomVideoRequest struct {
	ImageURL        string `json:"imageUrl" validate:"required,url"`
	Prompt          string `json:"prompt,omitempty" validate:"max=4000"`
	Order           int    `json:"order" validate:"gte=0"`
	RoomDescription string `json:"roomDescription,omitempty" validate:"max=2000"`
	Filename        string `json:"filename,omitempty" validate:"max=255"`
}

// GenerateRoomVideoResponse is returned once a room clip is stored.
type GenerateRoomVideoResponse struct {
	Success  bool    `json:"success"`
	VideoURL string  `json:"videoUrl"`
	Duration float64 `json:"duration"`
	Order    int     `json:"order"`
}
