package dishes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
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

type ListQuery struct {
	City          string
	ProteinSource string
	MinPrice      *int
	MaxPrice      *int
	Q             string   // substring match on dish or restaurant name
	IDs           []string // restrict to these ids, set from the search index
	Lat           *float64
	Lon           *float64
	RadiusKm      float64
	Limit         int
	Offset        int
}

// clamp applies the paging bounds List uses, so callers can echo them.
func (q *ListQuery) clamp() {
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
}

func (q ListQuery) hasDistance() bool {
	return q.Lat != nil && q.Lon != nil && q.RadiusKm > 0
}

const dishColumns = `
	d.id, d.user_id, d.restaurant_id, d.name, d.price, d.protein_source, d.taste,
	d.protein_content, d.satisfaction, d.comment, d.image_key, d.created_at, d.updated_at,
	r.id, r.name, r.city, r.source, r.place_id, r.address, r.latitude, r.longitude,
	r.is_cloud_kitchen, r.verified, r.created_at`

func scanDish(row interface{ Scan(...any) error }) (*models.Dish, error) {
	var (
		d        models.Dish
		r        models.Restaurant
		comment  sql.NullString
		imageKey sql.NullString
		placeID  sql.NullString
		address  sql.NullString
		lat      sql.NullFloat64
		lng      sql.NullFloat64
	)
	if err := row.Scan(
		&d.ID, &d.UserID, &d.RestaurantID, &d.Name, &d.Price, &d.ProteinSource, &d.Taste,
		&d.ProteinContent, &d.Satisfaction, &comment, &imageKey, &d.CreatedAt, &d.UpdatedAt,
		&r.ID, &r.Name, &r.City, &r.Source, &placeID, &address, &lat, &lng,
		&r.IsCloudKitchen, &r.Verified, &r.CreatedAt,
	); err != nil {
		return nil, err
	}
	if comment.Valid {
		d.Comment = &comment.String
	}
	if imageKey.Valid {
		d.ImageKey = &imageKey.String
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
	d.Restaurant = &r
	return &d, nil
}

type sqlBuilder struct {
	where []string
	args  []any
}

// arg appends v and returns its positional placeholder.
func (b *sqlBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

func buildFilter(q ListQuery) *sqlBuilder {
	b := &sqlBuilder{}

	if city := strings.TrimSpace(q.City); city != "" {
		b.where = append(b.where, "LOWER(r.city) = LOWER("+b.arg(city)+")")
	}
	if ps := strings.TrimSpace(q.ProteinSource); ps != "" {
		b.where = append(b.where, "d.protein_source = "+b.arg(strings.ToLower(ps)))
	}
	if q.MinPrice != nil {
		b.where = append(b.where, "d.price >= "+b.arg(*q.MinPrice))
	}
	if q.MaxPrice != nil {
		b.where = append(b.where, "d.price <= "+b.arg(*q.MaxPrice))
	}
	if q.IDs != nil {
		if len(q.IDs) == 0 {
			b.where = append(b.where, "1 = 0")
		} else {
			ph := make([]string, len(q.IDs))
			for i, id := range q.IDs {
				ph[i] = b.arg(id)
			}
			b.where = append(b.where, "d.id IN ("+strings.Join(ph, ", ")+")")
		}
	} else if kw := strings.ToLower(strings.TrimSpace(q.Q)); kw != "" {
		p := b.arg("%" + kw + "%")
		b.where = append(b.where, "(LOWER(d.name) LIKE "+p+" OR LOWER(r.name) LIKE "+p+")")
	}
	if q.hasDistance() {
		box := boundingBox(*q.Lat, *q.Lon, q.RadiusKm)
		b.where = append(b.where, "r.latitude BETWEEN "+b.arg(box.MinLat)+" AND "+b.arg(box.MaxLat))
		// a box crossing a pole or the antimeridian leaves longitude to haversine
		if box.LonBounded {
			b.where = append(b.where, "r.longitude BETWEEN "+b.arg(box.MinLon)+" AND "+b.arg(box.MaxLon))
		}
	}
	return b
}

func (b *sqlBuilder) whereSQL() string {
	if len(b.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.where, " AND ")
}

// List returns one page of dishes and the total match count. With a distance
// filter the page is ordered nearest first and each dish carries DistanceKm;
// otherwise newest first.
func (r *Repo) List(ctx context.Context, q ListQuery) ([]models.Dish, int, error) {
	q.clamp()

	if q.hasDistance() {
		return r.listByDistance(ctx, q)
	}

	b := buildFilter(q)
	var total int
	if err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM dishes d JOIN restaurants r ON r.id = d.restaurant_id`+b.whereSQL(),
		b.args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count dishes: %w", err)
	}

	query := `SELECT ` + dishColumns + ` FROM dishes d JOIN restaurants r ON r.id = d.restaurant_id` +
		b.whereSQL() + ` ORDER BY d.created_at DESC, d.id LIMIT ` + b.arg(q.Limit) + ` OFFSET ` + b.arg(q.Offset)
	out, err := r.query(ctx, query, b.args...)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *Repo) listByDistance(ctx context.Context, q ListQuery) ([]models.Dish, int, error) {
	b := buildFilter(q)
	all, err := r.query(ctx, `SELECT `+dishColumns+` FROM dishes d JOIN restaurants r ON r.id = d.restaurant_id`+b.whereSQL(), b.args...)
	if err != nil {
		return nil, 0, err
	}

	within := all[:0]
	for _, d := range all {
		rest := d.Restaurant
		if rest.Latitude == nil || rest.Longitude == nil {
			continue
		}
		km := haversineKm(*q.Lat, *q.Lon, *rest.Latitude, *rest.Longitude)
		if km > q.RadiusKm {
			continue
		}
		d.DistanceKm = &km
		within = append(within, d)
	}
	sort.SliceStable(within, func(i, j int) bool { return *within[i].DistanceKm < *within[j].DistanceKm })

	total := len(within)
	if q.Offset >= total {
		return []models.Dish{}, total, nil
	}
	end := q.Offset + q.Limit
	if end > total {
		end = total
	}
	return within[q.Offset:end], total, nil
}

func (r *Repo) query(ctx context.Context, query string, args ...any) ([]models.Dish, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list dishes: %w", err)
	}
	defer rows.Close()

	out := []models.Dish{}
	for rows.Next() {
		d, err := scanDish(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dish: %w", err)
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

func (r *Repo) Get(ctx context.Context, id string) (*models.Dish, error) {
	d, err := scanDish(r.DB.QueryRowContext(ctx,
		`SELECT `+dishColumns+` FROM dishes d JOIN restaurants r ON r.id = d.restaurant_id WHERE d.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get dish: %w", err)
	}
	return d, nil
}

// GetMany returns the dishes that still exist among ids, in no fixed order.
func (r *Repo) GetMany(ctx context.Context, ids []string) ([]models.Dish, error) {
	if len(ids) == 0 {
		return []models.Dish{}, nil
	}
	b := &sqlBuilder{}
	ph := make([]string, len(ids))
	for i, id := range ids {
		ph[i] = b.arg(id)
	}
	return r.query(ctx,
		`SELECT `+dishColumns+` FROM dishes d JOIN restaurants r ON r.id = d.restaurant_id WHERE d.id IN (`+strings.Join(ph, ", ")+`)`,
		b.args...)
}

// Insert writes the dish with its channels. apps attach to the Online channel,
// which is created only when apps is non-empty.
func (r *Repo) Insert(ctx context.Context, db database.DBTX, d *models.Dish, inStore bool, apps []string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO dishes (id, user_id, restaurant_id, name, price, protein_source, taste, protein_content, satisfaction, comment)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, d.ID, d.UserID, d.RestaurantID, d.Name, d.Price, d.ProteinSource, d.Taste, d.ProteinContent, d.Satisfaction, d.Comment)
	if err != nil {
		return fmt.Errorf("insert dish: %w", err)
	}
	return insertAvailability(ctx, db, d.ID, inStore, apps)
}

// Update rewrites the editable dish fields. Restaurant and author are fixed.
func (r *Repo) Update(ctx context.Context, db database.DBTX, d *models.Dish) error {
	_, err := db.ExecContext(ctx, `
		UPDATE dishes
		SET name = $1, price = $2, protein_source = $3, taste = $4, protein_content = $5,
			satisfaction = $6, comment = $7, updated_at = CURRENT_TIMESTAMP
		WHERE id = $8
	`, d.Name, d.Price, d.ProteinSource, d.Taste, d.ProteinContent, d.Satisfaction, d.Comment, d.ID)
	if err != nil {
		return fmt.Errorf("update dish: %w", err)
	}
	return nil
}

// ReplaceAvailability drops every channel of the dish (associations go with
// them) and writes the new set.
func (r *Repo) ReplaceAvailability(ctx context.Context, db database.DBTX, dishID string, inStore bool, apps []string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM availability_channels WHERE dish_id = $1`, dishID); err != nil {
		return fmt.Errorf("delete channels: %w", err)
	}
	return insertAvailability(ctx, db, dishID, inStore, apps)
}

func insertAvailability(ctx context.Context, db database.DBTX, dishID string, inStore bool, apps []string) error {
	if inStore {
		if _, err := db.ExecContext(ctx, `
			INSERT INTO availability_channels (id, dish_id, tag) VALUES ($1, $2, $3)
		`, uuid.NewString(), dishID, models.ChannelInStore); err != nil {
			return fmt.Errorf("insert in-store channel: %w", err)
		}
	}

	if len(apps) == 0 {
		return nil
	}
	channelID := uuid.NewString()
	if _, err := db.ExecContext(ctx, `
		INSERT INTO availability_channels (id, dish_id, tag) VALUES ($1, $2, $3)
	`, channelID, dishID, models.ChannelOnline); err != nil {
		return fmt.Errorf("insert online channel: %w", err)
	}
	for _, app := range apps {
		if _, err := db.ExecContext(ctx, `
			INSERT INTO delivery_app_associations (id, channel_id, app) VALUES ($1, $2, $3)
		`, uuid.NewString(), channelID, app); err != nil {
			return fmt.Errorf("insert delivery app %s: %w", app, err)
		}
	}
	return nil
}

func (r *Repo) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM dishes WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete dish: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *Repo) SetImage(ctx context.Context, id, key string) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE dishes SET image_key = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2
	`, key, id)
	if err != nil {
		return fmt.Errorf("set dish image: %w", err)
	}
	return nil
}
