package models

import "time"

type User struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"display_name"`
	Email        *string   `json:"email,omitempty"`
	Phone        *string   `json:"phone,omitempty"`
	TokenVersion int       `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type InviteCode struct {
	Code      string     `json:"code"`
	OwnerID   *string    `json:"owner_id,omitempty"`
	IsUsed    bool       `json:"is_used"`
	UsedBy    *string    `json:"used_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}

type WishlistEntry struct {
	UserID    string    `json:"user_id"`
	DishID    string    `json:"dish_id"`
	CreatedAt time.Time `json:"created_at"`
	Dish      *Dish     `json:"dish,omitempty"`
}

type AbuseReport struct {
	ID           string    `json:"id"`
	RestaurantID string    `json:"restaurant_id"`
	DeliveryApp  string    `json:"delivery_app"`
	UserID       string    `json:"user_id"`
	CreatedAt    time.Time `json:"created_at"`
}
