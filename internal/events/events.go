package events

import (
	"context"
	"errors"
	"time"
)

const (
	TypeAvailabilityRetracted = "availability.retracted"
	TypeDishCreated           = "dish.created"
	TypeDishUpdated           = "dish.updated"
	TypeDishDeleted           = "dish.deleted"
)

type Event struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

// Retracted describes one delivery app pulled from a restaurant's dishes.
type Retracted struct {
	RestaurantID    string   `json:"restaurant_id"`
	DeliveryApp     string   `json:"delivery_app"`
	AffectedDishes  []string `json:"affected_dishes"`
	DeletedChannels []string `json:"deleted_channels,omitempty"`
}

type DishChanged struct {
	DishID       string `json:"dish_id"`
	RestaurantID string `json:"restaurant_id"`
	UserID       string `json:"user_id"`
}

func New(typ string, data any) Event {
	return Event{Type: typ, At: time.Now().UTC(), Data: data}
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
