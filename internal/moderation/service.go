package moderation

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"proteinmap/internal/events"
	"proteinmap/pkg/models"
	"proteinmap/pkg/utils"
)

// maxAppsPerReport bounds a single batch.
const maxAppsPerReport = 20

// Reindexer refreshes search documents for dishes whose availability changed.
type Reindexer interface {
	ReindexDishes(ctx context.Context, dishIDs []string) error
}

type Service struct {
	Ledger    *Ledger
	Evaluator *Evaluator
	Retractor *Retractor
	Publisher events.Publisher
	Reindexer Reindexer
	Log       logrus.FieldLogger

	// Concurrency caps the goroutines working on one batch.
	Concurrency int
}

type Result struct {
	ReportedApps []string
	RemovedApps  []string
	Retractions  []Retraction
}

type appOutcome struct {
	accepted   bool
	failed     bool
	retraction *Retraction
}

// ReportApps records one report per app, then evaluates every app that was
// stored (including repeat reports) and retracts those over the threshold.
// Ledger writes for all apps finish before any evaluation starts.
func (s *Service) ReportApps(ctx context.Context, restaurantID string, deliveryApps []string, userID string) (Result, error) {
	if strings.TrimSpace(userID) == "" {
		return Result{}, utils.Unauthorized()
	}
	restaurantID = strings.TrimSpace(restaurantID)
	if restaurantID == "" {
		return Result{}, utils.ValidationError("restaurantId is required")
	}
	apps := normalizeApps(deliveryApps)
	if len(apps) == 0 {
		return Result{}, utils.ValidationError("deliveryApps must contain at least one app")
	}
	if len(apps) > maxAppsPerReport {
		return Result{}, utils.ValidationError("too many deliveryApps")
	}

	exists, err := s.Ledger.RestaurantExists(ctx, restaurantID)
	if err != nil {
		return Result{}, err
	}
	if !exists {
		return Result{}, utils.NotFound("restaurant not found")
	}

	log := s.Log.WithFields(logrus.Fields{
		"task":          "report",
		"restaurant_id": restaurantID,
		"user_id":       userID,
	})
	outcomes := make([]appOutcome, len(apps))

	s.fanOut(apps, func(i int, app string) {
		accepted, err := s.Ledger.Submit(ctx, restaurantID, app, userID)
		if err != nil {
			outcomes[i].failed = true
			log.WithError(err).WithField("delivery_app", app).Error("ledger insert failed")
			return
		}
		outcomes[i].accepted = accepted
	})

	failed := 0
	for _, o := range outcomes {
		if o.failed {
			failed++
		}
	}
	if failed == len(apps) {
		return Result{}, utils.NewDomainError(http.StatusInternalServerError, "STORAGE_ERROR", "could not record reports")
	}

	s.fanOut(apps, func(i int, app string) {
		if outcomes[i].failed {
			return
		}
		appLog := log.WithField("delivery_app", app)

		met, err := s.Evaluator.MeetsThreshold(ctx, restaurantID, app)
		if err != nil {
			appLog.WithError(err).Error("threshold check failed")
			return
		}
		if !met {
			return
		}

		rt, err := s.Retractor.Retract(ctx, restaurantID, app)
		if err != nil {
			appLog.WithError(err).Error("retraction failed")
		}
		outcomes[i].retraction = &rt
	})

	res := Result{ReportedApps: []string{}}
	for i, app := range apps {
		o := outcomes[i]
		if o.accepted {
			res.ReportedApps = append(res.ReportedApps, app)
		}
		if o.retraction == nil {
			continue
		}
		if o.retraction.Removed {
			res.RemovedApps = append(res.RemovedApps, app)
		}
		if o.retraction.Removed || len(o.retraction.DeletedChannels) > 0 {
			res.Retractions = append(res.Retractions, *o.retraction)
		}
	}

	s.announce(ctx, log, res.Retractions)
	return res, nil
}

func (s *Service) fanOut(apps []string, fn func(i int, app string)) {
	limit := s.Concurrency
	if limit <= 0 {
		limit = 1
	}
	sem := make(chan struct{}, limit)

	var wg sync.WaitGroup
	for i, app := range apps {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, app string) {
			defer wg.Done()
			defer func() { <-sem }()
			fn(i, app)
		}(i, app)
	}
	wg.Wait()
}

// announce publishes retraction events and refreshes search documents.
// Failures here never change the report outcome.
func (s *Service) announce(ctx context.Context, log logrus.FieldLogger, retractions []Retraction) {
	for _, rt := range retractions {
		if s.Publisher != nil {
			ev := events.New(events.TypeAvailabilityRetracted, events.Retracted{
				RestaurantID:    rt.RestaurantID,
				DeliveryApp:     rt.DeliveryApp,
				AffectedDishes:  rt.AffectedDishes,
				DeletedChannels: rt.DeletedChannels,
			})
			if err := s.Publisher.Publish(ctx, ev); err != nil {
				log.WithError(err).Warn("publish retraction event failed")
			}
		}
		if s.Reindexer != nil && len(rt.AffectedDishes) > 0 {
			if err := s.Reindexer.ReindexDishes(ctx, rt.AffectedDishes); err != nil {
				log.WithError(err).Warn("reindex dishes failed")
			}
		}
	}
}

// normalizeApps canonicalises names and drops blanks and case-only repeats,
// keeping input order.
func normalizeApps(apps []string) []string {
	return models.NormalizeDeliveryApps(apps)
}
