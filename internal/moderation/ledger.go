package moderation

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"proteinmap/pkg/models"
)

// Ledger is the append-only record of abuse reports. A reporter can appear at
// most once per (restaurant, delivery app).
type Ledger struct {
	DB *sql.DB
}

func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{DB: db}
}

// Submit records a report under the app's canonical name. accepted is false
// when the same user already reported this app for this restaurant, in any
// spelling; that case is not an error.
func (l *Ledger) Submit(ctx context.Context, restaurantID, deliveryApp, userID string) (accepted bool, err error) {
	res, err := l.DB.ExecContext(ctx, `
		INSERT INTO abuse_reports (id, restaurant_id, delivery_app, user_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING
	`, uuid.NewString(), restaurantID, models.CanonicalDeliveryApp(deliveryApp), userID)
	if err != nil {
		return false, fmt.Errorf("insert abuse report: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert abuse report rows: %w", err)
	}
	return n > 0, nil
}

// RestaurantExists reports whether the restaurant row is present.
func (l *Ledger) RestaurantExists(ctx context.Context, restaurantID string) (bool, error) {
	var n int
	err := l.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM restaurants WHERE id = $1`, restaurantID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check restaurant: %w", err)
	}
	return n > 0, nil
}
