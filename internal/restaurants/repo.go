package restaurants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"proteinmap/pkg/database"
	"proteinmap/pkg/models"
)

type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

// Input describes the restaurant a new dish points at. A PlaceID means it came
// from the maps search; otherwise it was typed in by hand.
type Input struct {
	PlaceID        string   `json:"placeId"`
	Name           string   `json:"name"`
	City           string   `json:"city"`
	Address        string   `json:"address"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	IsCloudKitchen bool     `json:"isCloudKitchen"`
}

const restaurantColumns = `id, name, city, source, place_id, address, latitude, longitude, is_cloud_kitchen, verified, created_at`

func scanRestaurant(row interface{ Scan(...any) error }) (*models.Restaurant, error) {
	var (
		r       models.Restaurant
		placeID sql.NullString
		address sql.NullString
		lat     sql.NullFloat64
		lng     sql.NullFloat64
	)
	if err := row.Scan(&r.ID, &r.Name, &r.City, &r.Source, &placeID, &address, &lat, &lng, &r.IsCloudKitchen, &r.Verified, &r.CreatedAt); err != nil {
		return nil, err
	}
	if placeID.Valid {
		r.PlaceID = &placeID.String
	}
	if address.Valid {
		r.Address = &address.String
	}
	if lat.Valid {
		r.Latitude = &lat.Float64
	}
	if lng.Valid {
		r.Longitude = &lng.Float64
	}
	return &r, nil
}

// CleanName trims and collapses inner whitespace so "Grill  House " and
// "grill house" dedupe to the same row.
func CleanName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Resolve returns the existing restaurant matching in, creating it when there
// is none. Maps restaurants match on place id; manual ones on a
// case-insensitive name and city.
func (r *Repo) Resolve(ctx context.Context, db database.DBTX, in Input) (*models.Restaurant, bool, error) {
	in.Name = CleanName(in.Name)
	in.City = CleanName(in.City)
	in.PlaceID = strings.TrimSpace(in.PlaceID)
	if in.Name == "" || in.City == "" {
		return nil, false, errors.New("restaurant name and city are required")
	}

	if in.PlaceID != "" {
		return r.resolveByPlace(ctx, db, in)
	}
	return r.resolveManual(ctx, db, in)
}

func (r *Repo) resolveByPlace(ctx context.Context, db database.DBTX, in Input) (*models.Restaurant, bool, error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO restaurants (id, name, city, source, place_id, address, latitude, longitude)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (place_id) DO NOTHING
	`, uuid.NewString(), in.Name, in.City, models.SourceGoogleMaps, in.PlaceID, nullString(in.Address), in.Latitude, in.Longitude)
	if err != nil {
		return nil, false, fmt.Errorf("insert maps restaurant: %w", err)
	}
	n, _ := res.RowsAffected()

	rest, err := scanRestaurant(db.QueryRowContext(ctx, `SELECT `+restaurantColumns+` FROM restaurants WHERE place_id = $1`, in.PlaceID))
	if err != nil {
		return nil, false, fmt.Errorf("get restaurant by place: %w", err)
	}
	return rest, n > 0, nil
}

func (r *Repo) resolveManual(ctx context.Context, db database.DBTX, in Input) (*models.Restaurant, bool, error) {
	rest, err := scanRestaurant(db.QueryRowContext(ctx, `
		SELECT `+restaurantColumns+`
		FROM restaurants
		WHERE source = $1 AND LOWER(name) = LOWER($2) AND LOWER(city) = LOWER($3)
		ORDER BY created_at
		LIMIT 1
	`, models.SourceManual, in.Name, in.City))
	if err == nil {
		return rest, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("find manual restaurant: %w", err)
	}

	id := uuid.NewString()
	_, err = db.ExecContext(ctx, `
		INSERT INTO restaurants (id, name, city, source, address, latitude, longitude, is_cloud_kitchen)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, id, in.Name, in.City, models.SourceManual, nullString(in.Address), in.Latitude, in.Longitude, in.IsCloudKitchen)
	if err != nil {
		return nil, false, fmt.Errorf("insert manual restaurant: %w", err)
	}

	rest, err = scanRestaurant(db.QueryRowContext(ctx, `SELECT `+restaurantColumns+` FROM restaurants WHERE id = $1`, id))
	if err != nil {
		return nil, false, fmt.Errorf("get restaurant: %w", err)
	}
	return rest, true, nil
}

func (r *Repo) Get(ctx context.Context, id string) (*models.Restaurant, error) {
	rest, err := scanRestaurant(r.DB.QueryRowContext(ctx, `SELECT `+restaurantColumns+` FROM restaurants WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get restaurant: %w", err)
	}
	return rest, nil
}

// CityCount is a city that has at least one dish.
type CityCount struct {
	City   string `json:"city"`
	Dishes int    `json:"dishes"`
}

func (r *Repo) ListCities(ctx context.Context) ([]CityCount, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT r.city, COUNT(d.id)
		FROM restaurants r
		JOIN dishes d ON d.restaurant_id = r.id
		GROUP BY r.city
		ORDER BY COUNT(d.id) DESC, r.city
	`)
	if err != nil {
		return nil, fmt.Errorf("list cities: %w", err)
	}
	defer rows.Close()

	out := []CityCount{}
	for rows.Next() {
		var c CityCount
		if err := rows.Scan(&c.City, &c.Dishes); err != nil {
			return nil, fmt.Errorf("scan city: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

func nullString(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return s
}
