package models

import "time"

// Channel tags stored in availability_channels.tag.
const (
	ChannelInStore = "In-Store"
	ChannelOnline  = "Online"
)

type AvailabilityLabel string

const (
	LabelInStore AvailabilityLabel = "In-Store"
	LabelOnline  AvailabilityLabel = "Online"
	LabelBoth    AvailabilityLabel = "Both"
	LabelUnknown AvailabilityLabel = "Unknown"
)

// Availability is derived from a dish's channels on every read and never stored.
type Availability struct {
	HasInStore   bool              `json:"has_in_store"`
	HasOnline    bool              `json:"has_online"`
	DeliveryApps []string          `json:"delivery_apps"`
	Label        AvailabilityLabel `json:"label"`
}

type Dish struct {
	ID             string       `json:"id"`
	UserID         string       `json:"user_id"`
	RestaurantID   string       `json:"restaurant_id"`
	Name           string       `json:"name"`
	Price          int          `json:"price"`
	ProteinSource  string       `json:"protein_source"`
	Taste          string       `json:"taste"`
	ProteinContent string       `json:"protein_content"`
	Satisfaction   string       `json:"satisfaction"`
	Comment        *string      `json:"comment,omitempty"`
	ImageKey       *string      `json:"-"`
	ImageURL       string       `json:"image_url,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	Availability   Availability `json:"availability"`

	// Populated by list/detail reads that join the restaurant.
	Restaurant *Restaurant `json:"restaurant,omitempty"`
	DistanceKm *float64    `json:"distance_km,omitempty"`
}

var (
	ProteinSources     = []string{"chicken", "egg", "fish", "mutton", "paneer", "soy", "tofu", "legumes", "whey", "other"}
	TasteRatings       = []string{"bad", "okay", "good", "great"}
	ProteinContents    = []string{"low", "medium", "high"}
	SatisfactionLevels = []string{"hungry", "okay", "full", "stuffed"}
)
