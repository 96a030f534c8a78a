package wishlist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"proteinmap/pkg/models"
)

type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

// Add bookmarks a dish. Adding the same dish twice is not an error; added
// reports whether a new row was written.
func (r *Repo) Add(ctx context.Context, userID, dishID string) (added bool, err error) {
	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO wishlist_entries (user_id, dish_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, dish_id) DO NOTHING
	`, userID, dishID)
	if err != nil {
		return false, fmt.Errorf("add wishlist entry: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *Repo) Delete(ctx context.Context, userID, dishID string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM wishlist_entries
		WHERE user_id = $1 AND dish_id = $2
	`, userID, dishID)
	if err != nil {
		return false, fmt.Errorf("delete wishlist entry: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *Repo) List(ctx context.Context, userID string, limit, offset int) ([]models.WishlistEntry, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM wishlist_entries WHERE user_id = $1
	`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count wishlist: %w", err)
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT user_id, dish_id, created_at
		FROM wishlist_entries
		WHERE user_id = $1
		ORDER BY created_at DESC, dish_id
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list wishlist: %w", err)
	}
	defer rows.Close()

	out := make([]models.WishlistEntry, 0, limit)
	for rows.Next() {
		var e models.WishlistEntry
		if err := rows.Scan(&e.UserID, &e.DishID, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan wishlist row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows err: %w", err)
	}
	return out, total, nil
}

func (r *Repo) DishExists(ctx context.Context, dishID string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM dishes WHERE id = $1`, dishID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check dish: %w", err)
	}
	return true, nil
}
