package wishlist

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proteinmap/internal/auth"
	"proteinmap/internal/availability"
	"proteinmap/internal/dishes"
	"proteinmap/internal/testutil"
	"proteinmap/pkg/logging"
	"proteinmap/pkg/models"
)

func TestAddIsIdempotent(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	user := testutil.CreateUser(t, db, "asha")
	rest := testutil.CreateRestaurant(t, db, "Grill House", "Pune", false)
	dish := testutil.CreateDish(t, db, user, rest, "Chicken Bowl", true)

	added, err := repo.Add(ctx, user, dish)
	require.NoError(t, err)
	assert.True(t, added)

	for i := 0; i < 3; i++ {
		added, err = repo.Add(ctx, user, dish)
		require.NoError(t, err)
		assert.False(t, added)
	}
	assert.Equal(t, 1, testutil.CountRows(t, db, `SELECT COUNT(*) FROM wishlist_entries WHERE user_id = $1`, user))

	items, total, err := repo.List(ctx, user, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, dish, items[0].DishID)

	ok, err := repo.Delete(ctx, user, dish)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.Delete(ctx, user, dish)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEntriesFollowDishDeletion(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	user := testutil.CreateUser(t, db, "asha")
	rest := testutil.CreateRestaurant(t, db, "Grill House", "Pune", false)
	dish := testutil.CreateDish(t, db, user, rest, "Chicken Bowl", true)
	_, err := repo.Add(ctx, user, dish)
	require.NoError(t, err)

	_, err = db.Exec(`DELETE FROM dishes WHERE id = $1`, dish)
	require.NoError(t, err)

	_, total, err := repo.List(ctx, user, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestHandlerFlow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := testutil.OpenDB(t)
	user := testutil.CreateUser(t, db, "asha")
	rest := testutil.CreateRestaurant(t, db, "Grill House", "Pune", false)
	dish := testutil.CreateDish(t, db, user, rest, "Chicken Bowl", true, "Swiggy")

	svc := &dishes.Service{
		DB:           db,
		Repo:         dishes.NewRepo(db),
		Availability: availability.NewReader(db),
		Log:          logging.Discard(),
	}
	tokens := auth.TokenService{Secret: []byte("secret"), Duration: time.Hour}
	r := gin.New()
	NewHandler(NewRepo(db), svc, logging.Discard()).RegisterRoutes(r.Group("/api", auth.AuthMiddleware(tokens, nil)))

	tok, _, err := tokens.Sign(&models.User{ID: user})
	require.NoError(t, err)
	do := func(method, path string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Authorization", "Bearer "+tok)
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusCreated, do(http.MethodPost, "/api/users/wishlist", gin.H{"dishId": dish}).Code)
	assert.Equal(t, http.StatusOK, do(http.MethodPost, "/api/users/wishlist", gin.H{"dishId": dish}).Code)
	assert.Equal(t, http.StatusNotFound, do(http.MethodPost, "/api/users/wishlist", gin.H{"dishId": "nope"}).Code)
	assert.Equal(t, http.StatusBadRequest, do(http.MethodPost, "/api/users/wishlist", gin.H{}).Code)

	w := do(http.MethodGet, "/api/users/wishlist", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Total int                    `json:"total"`
		Items []models.WishlistEntry `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Equal(t, 1, list.Total)
	require.NotNil(t, list.Items[0].Dish)
	assert.Equal(t, "Chicken Bowl", list.Items[0].Dish.Name)
	assert.Equal(t, models.LabelBoth, list.Items[0].Dish.Availability.Label)

	assert.Equal(t, http.StatusOK, do(http.MethodDelete, "/api/users/wishlist/"+dish, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(http.MethodDelete, "/api/users/wishlist/"+dish, nil).Code)
}
