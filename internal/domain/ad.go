package domain

import "time"

// AdStatus enumerates the image-pipeline lifecycle states.
type AdStatus string

const (
	AdStatusPending   AdStatus = "pending"
	AdStatusCompleted AdStatus = "completed"
	AdStatusFailed    AdStatus = "failed"
)

// VideoStatus enumerates the independent video sub-pipeline states. The zero
// value "absent" means video generation was never triggered for the ad.
type VideoStatus string

const (
	VideoStatusAbsent    VideoStatus = "absent"
	VideoStatusPending   VideoStatus = "pending"
	VideoStatusCompleted VideoStatus = "completed"
	VideoStatusFailed    VideoStatus = "failed"
)

// Terminal reports whether the image pipeline can no longer transition the ad.
func (s AdStatus) Terminal() bool {
	return s == AdStatusCompleted || s == AdStatusFailed
}

// Ad is the durable record of one product-ad generation request. It is created
// in pending state before any external call is issued, so a crash mid-pipeline
// always leaves an inspectable record behind.
type Ad struct {
	ID                string
	OwnerEmail        string
	Status            AdStatus
	VideoStatus       VideoStatus
	Description       string
	RequestedSize     string
	OriginalImageURL  string
	GeneratedImageURL string
	ImagePrompt       string
	VideoPrompt       string
	VideoURL          string
	ErrorMessage      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CompletedAt       *time.Time
}

// AdPrompts holds the two prompts derived from a product description.
type AdPrompts struct {
	TextToImage  string `json:"textToImage"`
	ImageToVideo string `json:"imageToVideo"`
}
