package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"proteinmap/pkg/database"
	"proteinmap/pkg/models"
	"proteinmap/pkg/utils"
)

// OpenDB returns a migrated SQLite database living in the test's temp dir.
func OpenDB(t *testing.T) *sql.DB {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, utils.DatabaseConfig{
		Driver: database.DriverSQLite,
		DSN:    "file:" + filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(ctx, db))
	return db
}

func CreateUser(t *testing.T, db *sql.DB, name string) string {
	t.Helper()

	id := uuid.NewString()
	email := name + "@example.com"
	_, err := db.Exec(`INSERT INTO users (id, display_name, email) VALUES ($1, $2, $3)`, id, name, email)
	require.NoError(t, err)
	return id
}

func CreateRestaurant(t *testing.T, db *sql.DB, name, city string, cloudKitchen bool) string {
	t.Helper()

	id := uuid.NewString()
	_, err := db.Exec(`
		INSERT INTO restaurants (id, name, city, source, is_cloud_kitchen)
		VALUES ($1, $2, $3, $4, $5)
	`, id, name, city, models.SourceManual, cloudKitchen)
	require.NoError(t, err)
	return id
}

// CreateDish inserts a dish with an In-Store channel when inStore is set and
// an Online channel carrying apps when at least one app is given.
func CreateDish(t *testing.T, db *sql.DB, userID, restaurantID, name string, inStore bool, apps ...string) string {
	t.Helper()

	id := uuid.NewString()
	_, err := db.Exec(`
		INSERT INTO dishes (id, user_id, restaurant_id, name, price, protein_source, taste, protein_content, satisfaction)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, id, userID, restaurantID, name, 250, "chicken", "good", "high", "full")
	require.NoError(t, err)

	if inStore {
		AddChannel(t, db, id, models.ChannelInStore)
	}
	if len(apps) > 0 {
		channelID := AddChannel(t, db, id, models.ChannelOnline)
		for _, app := range apps {
			AddDeliveryApp(t, db, channelID, app)
		}
	}
	return id
}

func AddChannel(t *testing.T, db *sql.DB, dishID, tag string) string {
	t.Helper()

	id := uuid.NewString()
	_, err := db.Exec(`INSERT INTO availability_channels (id, dish_id, tag) VALUES ($1, $2, $3)`, id, dishID, tag)
	require.NoError(t, err)
	return id
}

func AddDeliveryApp(t *testing.T, db *sql.DB, channelID, app string) {
	t.Helper()

	_, err := db.Exec(`INSERT INTO delivery_app_associations (id, channel_id, app) VALUES ($1, $2, $3)`, uuid.NewString(), channelID, app)
	require.NoError(t, err)
}

// CountRows runs a COUNT(*) query and returns its result.
func CountRows(t *testing.T, db *sql.DB, query string, args ...any) int {
	t.Helper()

	var n int
	require.NoError(t, db.QueryRow(query, args...).Scan(&n))
	return n
}
