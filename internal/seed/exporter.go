package seed

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"proteinmap/internal/availability"
)

var exportColumns = []string{
	"owner", "restaurant", "city", "place_id", "address", "latitude", "longitude", "cloud_kitchen",
	"dish", "price", "protein", "taste", "protein_content", "satisfaction", "comment", "in_store", "delivery_apps",
}

// ExportDishes writes every dish in the layout ImportDishes reads, current
// availability included. It returns the number of dishes written.
func ExportDishes(ctx context.Context, db *sql.DB, out io.Writer) (int, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT d.id, COALESCE(u.email, u.phone, ''), r.name, r.city, r.place_id, r.address,
		       r.latitude, r.longitude, r.is_cloud_kitchen,
		       d.name, d.price, d.protein_source, d.taste, d.protein_content, d.satisfaction, d.comment
		FROM dishes d
		JOIN restaurants r ON r.id = d.restaurant_id
		JOIN users u ON u.id = d.user_id
		ORDER BY r.city, r.name, d.name
	`)
	if err != nil {
		return 0, fmt.Errorf("query dishes: %w", err)
	}
	defer rows.Close()

	type record struct {
		id     string
		fields []string
	}
	var records []record
	for rows.Next() {
		var (
			id, owner, restName, city, dish, protein, taste, content, satisfaction string
			placeID, address, comment                                              sql.NullString
			lat, lng                                                               sql.NullFloat64
			cloud                                                                  bool
			price                                                                  int
		)
		if err := rows.Scan(&id, &owner, &restName, &city, &placeID, &address, &lat, &lng, &cloud,
			&dish, &price, &protein, &taste, &content, &satisfaction, &comment); err != nil {
			return 0, fmt.Errorf("scan dish: %w", err)
		}
		records = append(records, record{id: id, fields: []string{
			owner, restName, city, placeID.String, address.String, formatFloat(lat), formatFloat(lng),
			strconv.FormatBool(cloud), dish, strconv.Itoa(price), protein, taste, content, satisfaction, comment.String,
		}})
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("rows err: %w", err)
	}

	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.id
	}
	avs, err := availability.NewReader(db).ClassifyMany(ctx, ids)
	if err != nil {
		return 0, err
	}

	w := csv.NewWriter(out)
	if err := w.Write(exportColumns); err != nil {
		return 0, err
	}
	for _, rec := range records {
		av := avs[rec.id]
		row := append(rec.fields, strconv.FormatBool(av.HasInStore), strings.Join(av.DeliveryApps, ";"))
		if err := w.Write(row); err != nil {
			return 0, err
		}
	}
	w.Flush()
	return len(records), w.Error()
}

func formatFloat(f sql.NullFloat64) string {
	if !f.Valid {
		return ""
	}
	return strconv.FormatFloat(f.Float64, 'f', -1, 64)
}
