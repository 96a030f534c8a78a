package availability

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"proteinmap/pkg/models"
)

// Reader derives dish availability from channel and delivery-app rows.
// Nothing derived is persisted, so a retraction is visible on the next read.
type Reader struct {
	DB *sql.DB
}

func NewReader(db *sql.DB) *Reader {
	return &Reader{DB: db}
}

type row struct {
	dishID string
	tag    string
	app    sql.NullString
}

// Classify returns the current availability of one dish. A dish with no
// channels classifies as Unknown.
func (r *Reader) Classify(ctx context.Context, dishID string) (models.Availability, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT c.dish_id, c.tag, a.app
		FROM availability_channels c
		LEFT JOIN delivery_app_associations a ON a.channel_id = c.id
		WHERE c.dish_id = $1
	`, dishID)
	if err != nil {
		return models.Availability{}, fmt.Errorf("classify dish: %w", err)
	}
	defer rows.Close()

	grouped, err := scan(rows)
	if err != nil {
		return models.Availability{}, err
	}
	return derive(grouped[dishID]), nil
}

// ClassifyMany classifies several dishes in one query. Every requested id is
// present in the result.
func (r *Reader) ClassifyMany(ctx context.Context, dishIDs []string) (map[string]models.Availability, error) {
	out := make(map[string]models.Availability, len(dishIDs))
	if len(dishIDs) == 0 {
		return out, nil
	}

	placeholders := make([]string, len(dishIDs))
	args := make([]any, len(dishIDs))
	for i, id := range dishIDs {
		placeholders[i] = "$" + strconv.Itoa(i+1)
		args[i] = id
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT c.dish_id, c.tag, a.app
		FROM availability_channels c
		LEFT JOIN delivery_app_associations a ON a.channel_id = c.id
		WHERE c.dish_id IN (`+strings.Join(placeholders, ", ")+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("classify dishes: %w", err)
	}
	defer rows.Close()

	grouped, err := scan(rows)
	if err != nil {
		return nil, err
	}
	for _, id := range dishIDs {
		out[id] = derive(grouped[id])
	}
	return out, nil
}

func scan(rows *sql.Rows) (map[string][]row, error) {
	grouped := make(map[string][]row)
	for rows.Next() {
		var rw row
		if err := rows.Scan(&rw.dishID, &rw.tag, &rw.app); err != nil {
			return nil, fmt.Errorf("scan availability row: %w", err)
		}
		grouped[rw.dishID] = append(grouped[rw.dishID], rw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return grouped, nil
}

// derive folds channel rows into a single Availability. An Online channel
// counts even when it has no delivery apps left.
func derive(rows []row) models.Availability {
	av := models.Availability{DeliveryApps: []string{}}
	seen := make(map[string]struct{})
	for _, rw := range rows {
		switch rw.tag {
		case models.ChannelInStore:
			av.HasInStore = true
		case models.ChannelOnline:
			av.HasOnline = true
			if rw.app.Valid {
				if _, dup := seen[rw.app.String]; !dup {
					seen[rw.app.String] = struct{}{}
					av.DeliveryApps = append(av.DeliveryApps, rw.app.String)
				}
			}
		}
	}
	sort.Strings(av.DeliveryApps)
	av.Label = Label(av.HasInStore, av.HasOnline)
	return av
}

func Label(hasInStore, hasOnline bool) models.AvailabilityLabel {
	switch {
	case hasInStore && hasOnline:
		return models.LabelBoth
	case hasInStore:
		return models.LabelInStore
	case hasOnline:
		return models.LabelOnline
	default:
		return models.LabelUnknown
	}
}
