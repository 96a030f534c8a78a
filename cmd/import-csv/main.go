package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"proteinmap/internal/auth"
	"proteinmap/internal/availability"
	"proteinmap/internal/dishes"
	"proteinmap/internal/events"
	"proteinmap/internal/restaurants"
	"proteinmap/internal/search"
	"proteinmap/internal/seed"
	"proteinmap/pkg/database"
	"proteinmap/pkg/logging"
	"proteinmap/pkg/utils"
)

func main() {
	var (
		in    = flag.String("dishes", "data/dishes.csv", "input CSV path for dishes")
		owner = flag.String("owner", "seed@proteinmap.local", "email or phone owning rows without an owner column")
	)
	flag.Parse()

	cfg, err := utils.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("load config failed")
	}
	log := logging.New(cfg.Log)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("db open failed")
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		log.WithError(err).Fatal("db migrate failed")
	}

	var index search.Index = search.Nop{}
	if cfg.Search.MeiliURL != "" {
		meili := search.NewMeili(cfg.Search.MeiliURL, cfg.Search.MeiliKey, log)
		defer meili.Close()
		index = meili
	}

	f, err := os.Open(*in)
	if err != nil {
		log.WithError(err).Fatal("open input failed")
	}
	defer f.Close()

	im := &seed.Importer{
		DB:    db,
		Users: auth.NewRepo(db),
		Dishes: &dishes.Service{
			DB:           db,
			Repo:         dishes.NewRepo(db),
			Restaurants:  restaurants.NewRepo(db),
			Availability: availability.NewReader(db),
			Index:        index,
			Publisher:    events.Nop{},
			Log:          log,
		},
		Log: log,
	}

	stats, err := im.ImportDishes(ctx, f, *owner)
	if err != nil {
		log.WithError(err).Fatal("import dishes failed")
	}
	log.WithFields(logrus.Fields{
		"file":     *in,
		"imported": stats.Imported,
		"existing": stats.Existing,
		"skipped":  stats.Skipped,
	}).Info("import finished")
}
