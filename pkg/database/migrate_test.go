package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proteinmap/pkg/utils"
)

func TestMigrateIsRepeatable(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, utils.DatabaseConfig{
		Driver: DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "nested", "app.db"),
	})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(ctx, db))
	require.NoError(t, Migrate(ctx, db))

	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestSchemaConstraints(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, utils.DatabaseConfig{
		Driver: DriverSQLite,
		DSN:    "file:" + filepath.Join(t.TempDir(), "app.db"),
	})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, Migrate(ctx, db))

	_, err = db.ExecContext(ctx, `
		INSERT INTO restaurants (id, name, city, source, place_id)
		VALUES ($1, $2, $3, $4, $5)
	`, "r1", "Grill", "Pune", "manual", "place-1")
	assert.Error(t, err, "manual restaurants carry no place id")

	_, err = db.ExecContext(ctx, `
		INSERT INTO restaurants (id, name, city, source)
		VALUES ($1, $2, $3, $4)
	`, "r2", "Grill", "Pune", "google_maps")
	assert.Error(t, err, "google_maps restaurants need a place id")

	_, err = db.ExecContext(ctx, `
		INSERT INTO restaurants (id, name, city, source, place_id, is_cloud_kitchen)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, "r3", "Grill", "Pune", "google_maps", "place-3", true)
	assert.Error(t, err, "only manual restaurants can be cloud kitchens")

	_, err = db.ExecContext(ctx, `
		INSERT INTO restaurants (id, name, city, source, place_id)
		VALUES ($1, $2, $3, $4, $5)
	`, "r4", "Grill", "Pune", "google_maps", "place-4")
	require.NoError(t, err)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), utils.DatabaseConfig{Driver: "oracle", DSN: "x"})
	require.Error(t, err)
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "file:data/a.db?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", sqliteDSN("data/a.db"))
	assert.Equal(t, "file:a.db?cache=shared&_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", sqliteDSN("file:a.db?cache=shared"))
}
