package seed

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"proteinmap/internal/auth"
	"proteinmap/internal/dishes"
	"proteinmap/internal/restaurants"
	"proteinmap/pkg/models"
)

// Importer loads dishes from CSV through the same validation and restaurant
// resolution as the API.
type Importer struct {
	DB     *sql.DB
	Users  *auth.Repo
	Dishes *dishes.Service
	Log    logrus.FieldLogger
}

type Stats struct {
	Imported int
	Existing int
	Skipped  int
}

// Columns read from the header row. delivery_apps is separated by ';'.
var requiredColumns = []string{"restaurant", "city", "dish", "price", "protein", "taste", "protein_content", "satisfaction"}

// ImportDishes reads one dish per row. Rows without an owner column belong to
// defaultOwner. Invalid rows are logged and skipped; rows matching an existing
// dish at the same restaurant are left alone so reruns are harmless.
func (im *Importer) ImportDishes(ctx context.Context, r io.Reader, defaultOwner string) (Stats, error) {
	var stats Stats

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := readHeader(cr)
	if err != nil {
		return stats, fmt.Errorf("read header: %w", err)
	}
	for _, col := range requiredColumns {
		if _, ok := header[col]; !ok {
			return stats, fmt.Errorf("missing column %q", col)
		}
	}

	owners := map[string]string{}
	var created []string
	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return stats, fmt.Errorf("line %d: %w", line, err)
		}
		if len(row) == 0 {
			continue
		}

		in, err := parseRow(header, row)
		if err != nil {
			im.Log.WithError(err).WithField("line", line).Warn("skipping row")
			stats.Skipped++
			continue
		}

		exists, err := im.dishExists(ctx, in)
		if err != nil {
			return stats, err
		}
		if exists {
			stats.Existing++
			continue
		}

		owner := valueAt(header, row, "owner")
		if owner == "" {
			owner = defaultOwner
		}
		ownerID, ok := owners[owner]
		if !ok {
			ownerID, err = im.ensureUser(ctx, owner)
			if err != nil {
				return stats, fmt.Errorf("line %d: %w", line, err)
			}
			owners[owner] = ownerID
		}

		d, err := im.Dishes.Create(ctx, ownerID, in)
		if err != nil {
			im.Log.WithError(err).WithField("line", line).Warn("skipping row")
			stats.Skipped++
			continue
		}
		created = append(created, d.ID)
		stats.Imported++
	}

	// Create indexes asynchronously; flush synchronously before returning.
	if len(created) > 0 {
		if err := im.Dishes.ReindexDishes(ctx, created); err != nil {
			im.Log.WithError(err).Warn("search reindex after import failed")
		}
	}
	return stats, nil
}

func parseRow(header map[string]int, row []string) (dishes.CreateInput, error) {
	price, err := strconv.Atoi(valueAt(header, row, "price"))
	if err != nil {
		return dishes.CreateInput{}, fmt.Errorf("parse price: %w", err)
	}
	lat, err := parseFloatPtr(valueAt(header, row, "latitude"))
	if err != nil {
		return dishes.CreateInput{}, fmt.Errorf("parse latitude: %w", err)
	}
	lng, err := parseFloatPtr(valueAt(header, row, "longitude"))
	if err != nil {
		return dishes.CreateInput{}, fmt.Errorf("parse longitude: %w", err)
	}

	var apps []string
	for _, a := range strings.Split(valueAt(header, row, "delivery_apps"), ";") {
		if a = strings.TrimSpace(a); a != "" {
			apps = append(apps, a)
		}
	}

	return dishes.CreateInput{
		Restaurant: restaurants.Input{
			PlaceID:        valueAt(header, row, "place_id"),
			Name:           valueAt(header, row, "restaurant"),
			City:           valueAt(header, row, "city"),
			Address:        valueAt(header, row, "address"),
			Latitude:       lat,
			Longitude:      lng,
			IsCloudKitchen: parseBool(valueAt(header, row, "cloud_kitchen")),
		},
		DishInput: dishes.DishInput{
			Name:           valueAt(header, row, "dish"),
			Price:          price,
			ProteinSource:  valueAt(header, row, "protein"),
			Taste:          valueAt(header, row, "taste"),
			ProteinContent: valueAt(header, row, "protein_content"),
			Satisfaction:   valueAt(header, row, "satisfaction"),
			Comment:        valueAt(header, row, "comment"),
			InStore:        parseBool(valueAt(header, row, "in_store")),
			DeliveryApps:   apps,
		},
	}, nil
}

func (im *Importer) dishExists(ctx context.Context, in dishes.CreateInput) (bool, error) {
	var one int
	err := im.DB.QueryRowContext(ctx, `
		SELECT 1
		FROM dishes d
		JOIN restaurants r ON r.id = d.restaurant_id
		WHERE LOWER(d.name) = LOWER($1) AND LOWER(r.name) = LOWER($2) AND LOWER(r.city) = LOWER($3)
		LIMIT 1
	`, strings.TrimSpace(in.Name), restaurants.CleanName(in.Restaurant.Name), strings.TrimSpace(in.Restaurant.City)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check existing dish: %w", err)
	}
	return true, nil
}

// ensureUser returns the id of the user owning identifier, creating a member
// without an invite when needed.
func (im *Importer) ensureUser(ctx context.Context, identifier string) (string, error) {
	id, err := auth.ParseIdentifier(identifier)
	if err != nil {
		return "", fmt.Errorf("owner %q: %w", identifier, err)
	}
	u, err := im.Users.GetByIdentifier(ctx, id)
	if err != nil {
		return "", err
	}
	if u != nil {
		return u.ID, nil
	}

	u = &models.User{ID: uuid.NewString(), DisplayName: "seed"}
	if id.Kind == auth.KindPhone {
		u.Phone = &id.Value
	} else {
		u.Email = &id.Value
		u.DisplayName = strings.SplitN(id.Value, "@", 2)[0]
	}

	tx, err := im.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin create owner: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := im.Users.CreateUser(ctx, tx, u); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit create owner: %w", err)
	}
	im.Log.WithField("owner", id.Value).Info("created seed owner")
	return u.ID, nil
}

func readHeader(r *csv.Reader) (map[string]int, error) {
	row, err := r.Read()
	if err != nil {
		return nil, err
	}
	header := make(map[string]int, len(row))
	for idx, name := range row {
		header[strings.TrimSpace(strings.ToLower(name))] = idx
	}
	return header, nil
}

func valueAt(header map[string]int, row []string, key string) string {
	idx, ok := header[key]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func parseFloatPtr(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}
