package moderation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"

	"proteinmap/pkg/models"
)

// Retractor removes a delivery app from every dish of a restaurant. There is
// no transaction spanning dishes: a dish that fails is logged and skipped, and
// the next retraction for the same pair finishes the job.
type Retractor struct {
	DB  *sql.DB
	Log logrus.FieldLogger
}

func NewRetractor(db *sql.DB, log logrus.FieldLogger) *Retractor {
	return &Retractor{DB: db, Log: log}
}

type Retraction struct {
	RestaurantID string
	DeliveryApp  string
	// Removed is true when at least one association was deleted by this call.
	Removed         bool
	AffectedDishes  []string
	DeletedChannels []string
	FailedDishes    int
}

// Retract runs the cross-dish removal and, for cloud kitchens, deletes Online
// channels left without any delivery app. Repeating it is a no-op.
func (r *Retractor) Retract(ctx context.Context, restaurantID, deliveryApp string) (Retraction, error) {
	out := Retraction{RestaurantID: restaurantID, DeliveryApp: deliveryApp}
	log := r.Log.WithFields(logrus.Fields{
		"task":          "retract",
		"restaurant_id": restaurantID,
		"delivery_app":  deliveryApp,
	})

	dishIDs, err := r.dishIDs(ctx, restaurantID)
	if err != nil {
		return out, err
	}

	for _, dishID := range dishIDs {
		removed, err := r.removeApp(ctx, dishID, deliveryApp)
		if err != nil {
			out.FailedDishes++
			log.WithError(err).WithField("dish_id", dishID).Error("remove delivery app failed")
			continue
		}
		if removed {
			out.Removed = true
			out.AffectedDishes = append(out.AffectedDishes, dishID)
		}
	}

	cloudKitchen, err := r.isCloudKitchen(ctx, restaurantID)
	if err != nil {
		return out, err
	}
	if !cloudKitchen {
		// non cloud kitchens keep their Online channel; the dish may still be
		// served in store
		return out, nil
	}

	for _, dishID := range dishIDs {
		channelID, err := r.dropEmptyOnlineChannel(ctx, dishID)
		if err != nil {
			out.FailedDishes++
			log.WithError(err).WithField("dish_id", dishID).Error("online channel cleanup failed")
			continue
		}
		if channelID != "" {
			out.DeletedChannels = append(out.DeletedChannels, channelID)
			if !slices.Contains(out.AffectedDishes, dishID) {
				out.AffectedDishes = append(out.AffectedDishes, dishID)
			}
		}
	}

	if out.Removed || len(out.DeletedChannels) > 0 {
		log.WithFields(logrus.Fields{
			"dishes":   len(out.AffectedDishes),
			"channels": len(out.DeletedChannels),
			"failed":   out.FailedDishes,
		}).Info("delivery app retracted")
	}
	return out, nil
}

func (r *Retractor) dishIDs(ctx context.Context, restaurantID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id FROM dishes WHERE restaurant_id = $1 ORDER BY created_at, id`, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("list restaurant dishes: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan dish id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return ids, nil
}

// onlineChannel returns "" when the dish has no Online channel.
func (r *Retractor) onlineChannel(ctx context.Context, dishID string) (string, error) {
	var id string
	err := r.DB.QueryRowContext(ctx, `
		SELECT id FROM availability_channels WHERE dish_id = $1 AND tag = $2
	`, dishID, models.ChannelOnline).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get online channel: %w", err)
	}
	return id, nil
}

func (r *Retractor) removeApp(ctx context.Context, dishID, deliveryApp string) (bool, error) {
	channelID, err := r.onlineChannel(ctx, dishID)
	if err != nil || channelID == "" {
		return false, err
	}

	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM delivery_app_associations WHERE channel_id = $1 AND LOWER(app) = LOWER($2)
	`, channelID, models.CanonicalDeliveryApp(deliveryApp))
	if err != nil {
		return false, fmt.Errorf("delete delivery app: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete delivery app rows: %w", err)
	}
	return n > 0, nil
}

// dropEmptyOnlineChannel deletes the dish's Online channel if no delivery app
// references it and returns the deleted channel id.
func (r *Retractor) dropEmptyOnlineChannel(ctx context.Context, dishID string) (string, error) {
	channelID, err := r.onlineChannel(ctx, dishID)
	if err != nil || channelID == "" {
		return "", err
	}

	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM availability_channels
		WHERE id = $1
		  AND NOT EXISTS (SELECT 1 FROM delivery_app_associations WHERE channel_id = $1)
	`, channelID)
	if err != nil {
		return "", fmt.Errorf("delete online channel: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("delete online channel rows: %w", err)
	}
	if n == 0 {
		return "", nil
	}
	return channelID, nil
}

func (r *Retractor) isCloudKitchen(ctx context.Context, restaurantID string) (bool, error) {
	var cloud bool
	err := r.DB.QueryRowContext(ctx, `SELECT is_cloud_kitchen FROM restaurants WHERE id = $1`, restaurantID).Scan(&cloud)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get restaurant kind: %w", err)
	}
	return cloud, nil
}
