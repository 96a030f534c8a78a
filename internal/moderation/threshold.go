package moderation

import (
	"context"
	"database/sql"
	"fmt"

	"proteinmap/pkg/models"
)

// ReportThreshold is the number of distinct reporters that retracts a
// delivery app from a restaurant.
const ReportThreshold = 2

type Evaluator struct {
	DB        *sql.DB
	Threshold int
}

func NewEvaluator(db *sql.DB) *Evaluator {
	return &Evaluator{DB: db, Threshold: ReportThreshold}
}

func (e *Evaluator) CountDistinctReporters(ctx context.Context, restaurantID, deliveryApp string) (int, error) {
	var n int
	err := e.DB.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT user_id)
		FROM abuse_reports
		WHERE restaurant_id = $1 AND LOWER(delivery_app) = LOWER($2)
	`, restaurantID, models.CanonicalDeliveryApp(deliveryApp)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count reporters: %w", err)
	}
	return n, nil
}

func (e *Evaluator) MeetsThreshold(ctx context.Context, restaurantID, deliveryApp string) (bool, error) {
	n, err := e.CountDistinctReporters(ctx, restaurantID, deliveryApp)
	if err != nil {
		return false, err
	}
	threshold := e.Threshold
	if threshold <= 0 {
		threshold = ReportThreshold
	}
	return n >= threshold, nil
}
