package dishes

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"proteinmap/internal/availability"
	"proteinmap/internal/events"
	"proteinmap/internal/restaurants"
	"proteinmap/internal/search"
	"proteinmap/internal/storage"
	"proteinmap/pkg/models"
	"proteinmap/pkg/utils"
)

const maxImageBytes = 5 << 20

type Service struct {
	DB           *sql.DB
	Repo         *Repo
	Restaurants  *restaurants.Repo
	Availability *availability.Reader
	Images       storage.Images
	Index        search.Index
	Publisher    events.Publisher
	Log          logrus.FieldLogger
}

// DishInput holds the owner-editable fields of a dish, availability included.
type DishInput struct {
	Name           string   `json:"name"`
	Price          int      `json:"price"`
	ProteinSource  string   `json:"proteinSource"`
	Taste          string   `json:"taste"`
	ProteinContent string   `json:"proteinContent"`
	Satisfaction   string   `json:"satisfaction"`
	Comment        string   `json:"comment"`
	InStore        bool     `json:"inStore"`
	DeliveryApps   []string `json:"deliveryApps"`
}

type CreateInput struct {
	Restaurant restaurants.Input `json:"restaurant"`
	DishInput
}

func oneOf(field, v string, allowed []string) error {
	if !slices.Contains(allowed, v) {
		return utils.ValidationError(fmt.Sprintf("%s must be one of: %s", field, strings.Join(allowed, ", ")))
	}
	return nil
}

func (in *DishInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.ProteinSource = strings.ToLower(strings.TrimSpace(in.ProteinSource))
	in.Taste = strings.ToLower(strings.TrimSpace(in.Taste))
	in.ProteinContent = strings.ToLower(strings.TrimSpace(in.ProteinContent))
	in.Satisfaction = strings.ToLower(strings.TrimSpace(in.Satisfaction))
	in.Comment = strings.TrimSpace(in.Comment)

	if in.Name == "" || len(in.Name) > 120 {
		return utils.ValidationError("name must be 1-120 chars")
	}
	if in.Price < 0 || in.Price > 100000 {
		return utils.ValidationError("price must be between 0 and 100000")
	}
	if len(in.Comment) > 1000 {
		return utils.ValidationError("comment must be at most 1000 chars")
	}
	for _, check := range []error{
		oneOf("proteinSource", in.ProteinSource, models.ProteinSources),
		oneOf("taste", in.Taste, models.TasteRatings),
		oneOf("proteinContent", in.ProteinContent, models.ProteinContents),
		oneOf("satisfaction", in.Satisfaction, models.SatisfactionLevels),
	} {
		if check != nil {
			return check
		}
	}

	in.DeliveryApps = models.NormalizeDeliveryApps(in.DeliveryApps)

	if !in.InStore && len(in.DeliveryApps) == 0 {
		return utils.ValidationError("a dish must be available in store or on at least one delivery app")
	}
	return nil
}

func (in *CreateInput) normalize() error {
	if err := in.DishInput.normalize(); err != nil {
		return err
	}
	if strings.TrimSpace(in.Restaurant.Name) == "" || strings.TrimSpace(in.Restaurant.City) == "" {
		return utils.ValidationError("restaurant name and city are required")
	}
	if in.Restaurant.PlaceID != "" {
		in.Restaurant.IsCloudKitchen = false
	}
	if in.Restaurant.IsCloudKitchen && in.InStore {
		return errCloudKitchenInStore
	}
	return nil
}

var errCloudKitchenInStore = utils.ValidationError("cloud kitchens have no in-store availability")

// Create resolves the restaurant and writes the dish and its availability in
// one transaction.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*models.Dish, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create dish: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rest, _, err := s.Restaurants.Resolve(ctx, tx, in.Restaurant)
	if err != nil {
		return nil, err
	}
	if rest.IsCloudKitchen && in.InStore {
		return nil, errCloudKitchenInStore
	}

	d := &models.Dish{
		ID:           uuid.NewString(),
		UserID:       userID,
		RestaurantID: rest.ID,
	}
	applyInput(d, in.DishInput)
	if err := s.Repo.Insert(ctx, tx, d, in.InStore, in.DeliveryApps); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create dish: %w", err)
	}

	created, err := s.Get(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	s.indexAsync(*created)
	s.publish(ctx, events.TypeDishCreated, created)
	return created, nil
}

// Update rewrites the dish fields and replaces its channels and delivery apps
// in one transaction. Only the author may edit; the restaurant is fixed.
func (s *Service) Update(ctx context.Context, userID, id string, in DishInput) (*models.Dish, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	d, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, utils.NotFound("dish not found")
	}
	if d.UserID != userID {
		return nil, utils.Forbidden("only the author can change this dish")
	}
	if d.Restaurant != nil && d.Restaurant.IsCloudKitchen && in.InStore {
		return nil, errCloudKitchenInStore
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update dish: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	applyInput(d, in)
	if err := s.Repo.Update(ctx, tx, d); err != nil {
		return nil, err
	}
	if err := s.Repo.ReplaceAvailability(ctx, tx, d.ID, in.InStore, in.DeliveryApps); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update dish: %w", err)
	}

	updated, err := s.Get(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	s.indexAsync(*updated)
	s.publish(ctx, events.TypeDishUpdated, updated)
	return updated, nil
}

func applyInput(d *models.Dish, in DishInput) {
	d.Name = in.Name
	d.Price = in.Price
	d.ProteinSource = in.ProteinSource
	d.Taste = in.Taste
	d.ProteinContent = in.ProteinContent
	d.Satisfaction = in.Satisfaction
	d.Comment = nil
	if in.Comment != "" {
		comment := in.Comment
		d.Comment = &comment
	}
}

func (s *Service) Get(ctx context.Context, id string) (*models.Dish, error) {
	d, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, utils.NotFound("dish not found")
	}
	av, err := s.Availability.Classify(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	d.Availability = av
	s.fillImageURL(d)
	return d, nil
}

// List resolves a text query through the search index when it is healthy
// and falls back to a SQL substring match otherwise.
func (s *Service) List(ctx context.Context, q ListQuery) ([]models.Dish, int, error) {
	if strings.TrimSpace(q.Q) != "" && s.Index != nil && s.Index.Healthy() {
		ids, err := s.Index.SearchDishIDs(q.Q, q.City, 1000)
		if err != nil {
			s.Log.WithError(err).Warn("search index failed, using sql match")
		} else {
			q.IDs = ids
		}
	}

	items, total, err := s.Repo.List(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	if err := s.decorate(ctx, items); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// decorate fills derived availability and image URLs in place.
func (s *Service) decorate(ctx context.Context, items []models.Dish) error {
	ids := make([]string, len(items))
	for i := range items {
		ids[i] = items[i].ID
	}
	avs, err := s.Availability.ClassifyMany(ctx, ids)
	if err != nil {
		return err
	}
	for i := range items {
		items[i].Availability = avs[items[i].ID]
		s.fillImageURL(&items[i])
	}
	return nil
}

// GetMany loads and decorates the dishes that still exist among ids.
func (s *Service) GetMany(ctx context.Context, ids []string) ([]models.Dish, error) {
	items, err := s.Repo.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	if err := s.decorate(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	d, err := s.Repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if d == nil {
		return utils.NotFound("dish not found")
	}
	if d.UserID != userID {
		return utils.Forbidden("only the author can delete this dish")
	}

	ok, err := s.Repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return utils.NotFound("dish not found")
	}

	if d.ImageKey != nil {
		s.removeImageAsync(*d.ImageKey)
	}
	if s.Index != nil {
		go func() {
			if err := s.Index.DeleteDish(id); err != nil {
				s.Log.WithError(err).WithField("dish_id", id).Warn("search delete failed")
			}
		}()
	}
	s.publish(ctx, events.TypeDishDeleted, d)
	return nil
}

// SetImage uploads a new photo for the dish and drops the previous one.
func (s *Service) SetImage(ctx context.Context, userID, id string, r io.Reader, size int64) (*models.Dish, error) {
	if s.Images == nil {
		return nil, utils.NewDomainError(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "image storage is not configured")
	}
	if size <= 0 || size > maxImageBytes {
		return nil, utils.ValidationError("image must be between 1 byte and 5 MB")
	}

	d, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, utils.NotFound("dish not found")
	}
	if d.UserID != userID {
		return nil, utils.Forbidden("only the author can change this dish")
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, utils.ValidationError("could not read image")
	}
	head = head[:n]
	contentType := http.DetectContentType(head)
	if !storage.AllowedContentType(contentType) {
		return nil, utils.ValidationError("image must be jpeg, png or webp")
	}

	key, err := s.Images.Put(ctx, id, io.MultiReader(bytes.NewReader(head), r), size, contentType)
	if err != nil {
		return nil, err
	}
	if err := s.Repo.SetImage(ctx, id, key); err != nil {
		s.removeImageAsync(key)
		return nil, err
	}
	if d.ImageKey != nil {
		s.removeImageAsync(*d.ImageKey)
	}
	return s.Get(ctx, id)
}

// ReindexDishes pushes fresh search documents for ids. Dishes that no longer
// exist are skipped.
func (s *Service) ReindexDishes(ctx context.Context, ids []string) error {
	if s.Index == nil || !s.Index.Healthy() {
		return nil
	}
	items, err := s.GetMany(ctx, ids)
	if err != nil {
		return err
	}
	docs := make([]search.DishDoc, 0, len(items))
	for _, d := range items {
		docs = append(docs, toDoc(d))
	}
	return s.Index.IndexDishes(docs)
}

func toDoc(d models.Dish) search.DishDoc {
	doc := search.DishDoc{
		ID:            d.ID,
		Name:          d.Name,
		RestaurantID:  d.RestaurantID,
		ProteinSource: d.ProteinSource,
		Price:         d.Price,
		Availability:  string(d.Availability.Label),
		DeliveryApps:  d.Availability.DeliveryApps,
	}
	if d.Restaurant != nil {
		doc.RestaurantName = d.Restaurant.Name
		doc.City = d.Restaurant.City
	}
	return doc
}

func (s *Service) indexAsync(d models.Dish) {
	if s.Index == nil || !s.Index.Healthy() {
		return
	}
	go func() {
		if err := s.Index.IndexDishes([]search.DishDoc{toDoc(d)}); err != nil {
			s.Log.WithError(err).WithField("dish_id", d.ID).Warn("search index failed")
		}
	}()
}

// removeImageAsync deletes a stored photo without holding up the request.
func (s *Service) removeImageAsync(key string) {
	if s.Images == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.Images.Delete(ctx, key); err != nil {
			s.Log.WithError(err).WithField("key", key).Warn("image cleanup failed")
		}
	}()
}

func (s *Service) fillImageURL(d *models.Dish) {
	if s.Images != nil && d.ImageKey != nil {
		d.ImageURL = s.Images.URL(*d.ImageKey)
	}
}

func (s *Service) publish(ctx context.Context, typ string, d *models.Dish) {
	if s.Publisher == nil {
		return
	}
	ev := events.New(typ, events.DishChanged{DishID: d.ID, RestaurantID: d.RestaurantID, UserID: d.UserID})
	if err := s.Publisher.Publish(ctx, ev); err != nil {
		s.Log.WithError(err).WithField("type", typ).Warn("publish event failed")
	}
}
