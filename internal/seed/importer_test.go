package seed

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proteinmap/internal/auth"
	"proteinmap/internal/availability"
	"proteinmap/internal/dishes"
	"proteinmap/internal/restaurants"
	"proteinmap/internal/testutil"
	"proteinmap/pkg/logging"
	"proteinmap/pkg/models"
)

const sample = `restaurant,city,latitude,longitude,cloud_kitchen,dish,price,protein,taste,protein_content,satisfaction,in_store,delivery_apps,owner
Grill House,Pune,18.52,73.85,,Chicken Bowl,280,chicken,great,high,full,yes,Swiggy;Zomato,
CloudBites,Bengaluru,,,true,Egg Wrap,150,egg,good,medium,okay,no,Swiggy,cook@example.com
Grill House,Pune,,,,Paneer Tikka,abc,paneer,good,high,full,yes,,
CloudBites,Bengaluru,,,true,Tofu Box,220,tofu,okay,medium,okay,yes,,
`

func newImporter(t *testing.T) *Importer {
	t.Helper()
	db := testutil.OpenDB(t)
	return &Importer{
		DB:    db,
		Users: auth.NewRepo(db),
		Dishes: &dishes.Service{
			DB:           db,
			Repo:         dishes.NewRepo(db),
			Restaurants:  restaurants.NewRepo(db),
			Availability: availability.NewReader(db),
			Log:          logging.Discard(),
		},
		Log: logging.Discard(),
	}
}

func TestImportDishes(t *testing.T) {
	im := newImporter(t)
	ctx := context.Background()

	stats, err := im.ImportDishes(ctx, strings.NewReader(sample), "seed@example.com")
	require.NoError(t, err)
	// bad price and an in-store cloud kitchen dish are skipped
	assert.Equal(t, Stats{Imported: 2, Skipped: 2}, stats)

	assert.Equal(t, 2, testutil.CountRows(t, im.DB, `SELECT COUNT(*) FROM users`))
	assert.Equal(t, 1, testutil.CountRows(t, im.DB, `SELECT COUNT(*) FROM restaurants WHERE is_cloud_kitchen = $1`, true))

	items, total, err := im.Dishes.List(ctx, dishes.ListQuery{City: "Pune"})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, models.LabelBoth, items[0].Availability.Label)
	assert.Equal(t, []string{"Swiggy", "Zomato"}, items[0].Availability.DeliveryApps)

	again, err := im.ImportDishes(ctx, strings.NewReader(sample), "seed@example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, again.Existing)
	assert.Equal(t, 0, again.Imported)
	assert.Equal(t, 2, testutil.CountRows(t, im.DB, `SELECT COUNT(*) FROM dishes`))
}

func TestImportRequiresColumns(t *testing.T) {
	im := newImporter(t)
	_, err := im.ImportDishes(context.Background(), strings.NewReader("restaurant,city\nA,B\n"), "seed@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing column")
}

func TestExportRoundTrip(t *testing.T) {
	src := newImporter(t)
	ctx := context.Background()
	_, err := src.ImportDishes(ctx, strings.NewReader(sample), "seed@example.com")
	require.NoError(t, err)

	var buf strings.Builder
	n, err := ExportDishes(ctx, src.DB, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Contains(t, buf.String(), "Swiggy;Zomato")

	dst := newImporter(t)
	stats, err := dst.ImportDishes(ctx, strings.NewReader(buf.String()), "other@example.com")
	require.NoError(t, err)
	assert.Equal(t, Stats{Imported: 2}, stats)
	assert.Equal(t, 1, testutil.CountRows(t, dst.DB, `SELECT COUNT(*) FROM users WHERE email = $1`, "cook@example.com"))
	assert.Equal(t, 0, testutil.CountRows(t, dst.DB, `SELECT COUNT(*) FROM users WHERE email = $1`, "other@example.com"))
}
