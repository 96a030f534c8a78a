package search

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proteinmap/pkg/logging"
)

// fakeMeili answers just enough of the Meilisearch HTTP API for the client.
type fakeMeili struct {
	mu       sync.Mutex
	requests []string
	bodies   map[string]string
}

func (f *fakeMeili) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	key := r.Method + " " + r.URL.Path
	f.requests = append(f.requests, key)
	f.bodies[key] = string(body)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/health":
		_, _ = io.WriteString(w, `{"status":"available"}`)
	case strings.HasSuffix(r.URL.Path, "/search"):
		_, _ = io.WriteString(w, `{"hits":[{"id":"d2"},{"id":"d1"}],"estimatedTotalHits":2,"limit":20,"offset":0,"processingTimeMs":1,"query":"chicken"}`)
	default:
		w.WriteHeader(http.StatusAccepted)
		_, _ = io.WriteString(w, `{"taskUid":1,"indexUid":"proteinmap_dishes","status":"enqueued","type":"documentAdditionOrUpdate","enqueuedAt":"2026-01-01T00:00:00Z"}`)
	}
}

func (f *fakeMeili) saw(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r == key {
			return true
		}
	}
	return false
}

func TestMeiliIndexAndSearch(t *testing.T) {
	fake := &fakeMeili{bodies: map[string]string{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	m := NewMeili(srv.URL, "key", logging.Discard())
	defer m.Close()
	require.True(t, m.Healthy())
	assert.True(t, fake.saw("POST /indexes"))

	require.NoError(t, m.IndexDishes([]DishDoc{{ID: "d1", Name: "Chicken Bowl", City: "Pune", Availability: "Both"}}))
	require.True(t, fake.saw("POST /indexes/proteinmap_dishes/documents"))

	var docs []DishDoc
	fake.mu.Lock()
	require.NoError(t, json.Unmarshal([]byte(fake.bodies["POST /indexes/proteinmap_dishes/documents"]), &docs))
	fake.mu.Unlock()
	assert.Equal(t, "Chicken Bowl", docs[0].Name)

	ids, err := m.SearchDishIDs("chicken", "Pune", 20)
	require.NoError(t, err)
	assert.Equal(t, []string{"d2", "d1"}, ids)

	fake.mu.Lock()
	searchBody := fake.bodies["POST /indexes/proteinmap_dishes/search"]
	fake.mu.Unlock()
	assert.Contains(t, searchBody, `city = \"Pune\"`)

	require.NoError(t, m.DeleteDish("d1"))
	assert.True(t, fake.saw("DELETE /indexes/proteinmap_dishes/documents/d1"))

	require.NoError(t, m.IndexDishes(nil))
}

func TestMeiliUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	m := NewMeili(srv.URL, "", logging.Discard())
	defer m.Close()
	assert.False(t, m.Healthy())

	_, err := m.SearchDishIDs("chicken", "", 10)
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	var idx Index = Nop{}
	assert.False(t, idx.Healthy())
	ids, err := idx.SearchDishIDs("x", "", 1)
	assert.NoError(t, err)
	assert.Nil(t, ids)
}
