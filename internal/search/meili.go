package search

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/sirupsen/logrus"
)

const idxDishes = "proteinmap_dishes"

// DishDoc is the search document for one dish.
type DishDoc struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	RestaurantID   string   `json:"restaurantId"`
	RestaurantName string   `json:"restaurantName"`
	City           string   `json:"city"`
	ProteinSource  string   `json:"proteinSource"`
	Price          int      `json:"price"`
	Availability   string   `json:"availability"`
	DeliveryApps   []string `json:"deliveryApps"`
}

// Index is what the dish catalogue needs from a search backend.
type Index interface {
	Healthy() bool
	IndexDishes(docs []DishDoc) error
	DeleteDish(id string) error
	SearchDishIDs(q, city string, limit int) ([]string, error)
}

// Meili implements Index via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	log     logrus.FieldLogger
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili connects and configures the dish index. An unreachable server is
// tolerated; a background loop reconfigures once it comes up.
func NewMeili(url, apiKey string, log logrus.FieldLogger) *Meili {
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		log:    log.WithField("component", "search"),
		done:   make(chan struct{}),
	}

	if _, err := m.client.Health(); err != nil {
		m.log.WithError(err).Warnf("meilisearch unavailable at %s", url)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop(10 * time.Second)
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: idxDishes, PrimaryKey: "id"}); err != nil {
		m.log.WithError(err).Debug("create index (may already exist)")
	}

	index := m.client.Index(idxDishes)
	filterable := []interface{}{"city", "proteinSource", "availability", "deliveryApps", "restaurantId"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.log.WithError(err).Warn("update filterable attributes")
	}
	searchable := []string{"name", "restaurantName", "proteinSource"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.log.WithError(err).Warn("update searchable attributes")
	}
}

func (m *Meili) healthLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			was := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !was {
				m.log.Info("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) IndexDishes(docs []DishDoc) error {
	if len(docs) == 0 {
		return nil
	}
	if _, err := m.client.Index(idxDishes).AddDocuments(docs, nil); err != nil {
		return fmt.Errorf("index dishes: %w", err)
	}
	return nil
}

func (m *Meili) DeleteDish(id string) error {
	if _, err := m.client.Index(idxDishes).DeleteDocument(id, nil); err != nil {
		return fmt.Errorf("delete dish %s: %w", id, err)
	}
	return nil
}

// SearchDishIDs returns matching dish ids in relevance order.
func (m *Meili) SearchDishIDs(q, city string, limit int) ([]string, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}
	if limit <= 0 {
		limit = 100
	}

	req := &meili.SearchRequest{
		Limit:                int64(limit),
		AttributesToRetrieve: []string{"id"},
	}
	if city = strings.TrimSpace(city); city != "" {
		req.Filter = fmt.Sprintf("city = %q", city)
	}

	resp, err := m.client.Index(idxDishes).Search(q, req)
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch search: %w", err)
	}

	ids := make([]string, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		raw, ok := hit["id"]
		if !ok {
			continue
		}
		var id string
		if err := json.Unmarshal(raw, &id); err == nil && id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Nop is used when no search backend is configured.
type Nop struct{}

func (Nop) Healthy() bool { return false }
func (Nop) IndexDishes([]DishDoc) error { return nil }
func (Nop) DeleteDish(string) error { return nil }
func (Nop) SearchDishIDs(string, string, int) ([]string, error) { return nil, nil }
