package models

import "time"

const (
	SourceGoogleMaps = "google_maps"
	SourceManual     = "manual"
)

type Restaurant struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	City           string    `json:"city"`
	Source         string    `json:"source"`
	PlaceID        *string   `json:"place_id,omitempty"`
	Address        *string   `json:"address,omitempty"`
	Latitude       *float64  `json:"latitude,omitempty"`
	Longitude      *float64  `json:"longitude,omitempty"`
	IsCloudKitchen bool      `json:"is_cloud_kitchen"`
	Verified       bool      `json:"verified"`
	CreatedAt      time.Time `json:"created_at"`
}
