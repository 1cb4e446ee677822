package service

import (
	"path/filepath"
	"strings"

	"github.com/hometour/api/internal/model"
)

type roomRule struct {
	keywords []string
	exclude  []string
	room     model.RoomType
	exterior bool
	small    bool
}

// roomRules are evaluated in order; the first matching rule wins.
var roomRules = []roomRule{
	{keywords: []string{"front", "exterior", "curb"}, room: model.RoomFrontExterior, exterior: true},
	{keywords: []string{"back", "yard", "patio", "deck", "pool", "garden"}, room: model.RoomBackExterior, exterior: true},
	{keywords: []string{"bed"}, room: model.RoomBedroom, small: true},
	{keywords: []string{"master"}, exclude: []string{"bath"}, room: model.RoomBedroom, small: true},
	{keywords: []string{"bath", "powder", "shower"}, room: model.RoomBathroom, small: true},
	{keywords: []string{"office", "study", "den"}, room: model.RoomOffice, small: true},
	{keywords: []string{"laundry", "closet", "pantry"}, room: model.RoomUtility, small: true},
	{keywords: []string{"kitchen"}, room: model.RoomKitchen},
	{keywords: []string{"living", "family", "great", "lounge"}, room: model.RoomLivingRoom},
	{keywords: []string{"dining"}, room: model.RoomDiningRoom},
	{keywords: []string{"garage"}, room: model.RoomGarage},
	{keywords: []string{"basement", "bonus", "game"}, room: model.RoomLivingRoom},
}

// DetectRoomFromFilename classifies a photo by keywords in its file name,
// e.g. front.jpg, backyard.png, bedroom1.jpg. Unknown names are left for
// vision analysis.
func DetectRoomFromFilename(filename string) model.RoomDetection {
	name := strings.ToLower(filepath.Base(filename))

	for _, rule := range roomRules {
		if containsAny(name, rule.keywords) && !containsAny(name, rule.exclude) {
			return model.RoomDetection{
				RoomType:    rule.room,
				IsExterior:  rule.exterior,
				IsSmallRoom: rule.small,
			}
		}
	}

	return model.RoomDetection{RoomType: model.RoomUnknown}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
