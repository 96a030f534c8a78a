package moderation

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proteinmap/internal/auth"
	"proteinmap/internal/testutil"
	"proteinmap/pkg/models"
)

func TestReportEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := testutil.OpenDB(t)

	owner := testutil.CreateUser(t, db, "owner")
	u1 := testutil.CreateUser(t, db, "u1")
	u2 := testutil.CreateUser(t, db, "u2")
	r := testutil.CreateRestaurant(t, db, "CloudBites", "Bengaluru", true)
	testutil.CreateDish(t, db, owner, r, "Protein Bowl", false, "Swiggy")

	tokens := auth.TokenService{Secret: []byte("secret"), Issuer: "proteinmap", Duration: time.Hour}
	svc, _, _ := newService(db)

	router := gin.New()
	api := router.Group("/api", auth.AuthMiddleware(tokens, auth.NewRepo(db)))
	NewHandler(svc).RegisterRoutes(api)

	post := func(userID string, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/moderation/reports", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		if userID != "" {
			tok, _, err := tokens.Sign(&models.User{ID: userID})
			require.NoError(t, err)
			req.Header.Set("Authorization", "Bearer "+tok)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	w := post("", `{"restaurantId":"`+r+`","deliveryApps":["Swiggy"]}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = post(u1, `{"restaurantId":"`+r+`","deliveryApps":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = post(u1, `{"restaurantId":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = post(u1, `{"restaurantId":"`+r+`","deliveryApps":["Swiggy"]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var first map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	assert.Equal(t, []any{"Swiggy"}, first["reportedApps"])
	assert.NotContains(t, first, "removedApps")
	assert.NotEmpty(t, first["message"])

	w = post(u2, `{"restaurantId":"`+r+`","deliveryApps":["Swiggy"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	var second map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	assert.Equal(t, []any{"Swiggy"}, second["removedApps"])
	assert.Contains(t, second["message"], "Swiggy")

	w = post(u1, `{"restaurantId":"nope","deliveryApps":["Swiggy"]}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
