package model

// Photo is an uploaded room photograph.
type Photo struct {
	ID          string   `json:"id"`
	URL         string   `json:"url"`
	Filename    string   `json:"filename"`
	Order       int      `json:"order"`
	RoomType    RoomType `json:"roomType"`
	IsExterior  bool     `json:"isExterior"`
	IsSmallRoom bool     `json:"isSmallRoom"`
}

// UploadResponse represents the response for photo upload
type UploadResponse struct {
	Success bool    `json:"success"`
	Photos  []Photo `json:"photos"`
}
