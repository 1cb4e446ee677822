package model

// RoomType is the coarse room classification used for prompting.
type RoomType string

const (
	RoomFrontExterior RoomType = "front_exterior"
	RoomBackExterior  RoomType = "back_exterior"
	RoomBedroom       RoomType = "bedroom"
	RoomBathroom      RoomType = "bathroom"
	RoomKitchen       RoomType = "kitchen"
	RoomLivingRoom    RoomType = "living_room"
	RoomDiningRoom    RoomType = "dining_room"
	RoomOffice        RoomType = "office"
	RoomUtility       RoomType = "utility"
	RoomGarage        RoomType = "garage"
	RoomUnknown       RoomType = "unknown"
)

// RoomDetection is the result of classifying a photo.
type RoomDetection struct {
	RoomType    RoomType `json:"roomType"`
	IsExterior  bool     `json:"isExterior"`
	IsSmallRoom bool     `json:"isSmallRoom"`
}

// SceneCategory keys the camera-motion prompt rules.
type SceneCategory string

const (
	SceneExterior  SceneCategory = "exterior"
	SceneSmallRoom SceneCategory = "small_room"
	SceneLargeRoom SceneCategory = "large_room"
)

// RoomObject is one object located by vision analysis.
type RoomObject struct {
	Name     string `json:"name"`
	Position string `json:"position"`
}

// RoomAnalysis is the structured result of a vision pass over a photo.
type RoomAnalysis struct {
	RoomType           string       `json:"roomType"`
	SpatialDescription string       `json:"spatialDescription"`
	Objects            []RoomObject `json:"objects"`
	RawAnalysis        string       `json:"rawAnalysis"`
	IsExterior         bool         `json:"isExterior"`
	IsSmallRoom        bool         `json:"isSmallRoom"`
}
