package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"proteinmap/internal/seed"
	"proteinmap/pkg/database"
	"proteinmap/pkg/logging"
	"proteinmap/pkg/utils"
)

func main() {
	out := flag.String("dishes", "data/dishes.csv", "output CSV path for dishes")
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

	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		log.WithError(err).Fatal("create output dir failed")
	}
	f, err := os.Create(*out)
	if err != nil {
		log.WithError(err).Fatal("create output failed")
	}
	defer f.Close()

	n, err := seed.ExportDishes(ctx, db, f)
	if err != nil {
		log.WithError(err).Fatal("export dishes failed")
	}
	log.WithFields(logrus.Fields{"file": *out, "dishes": n}).Info("export finished")
}
