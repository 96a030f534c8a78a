package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"proteinmap/internal/auth"
	"proteinmap/internal/availability"
	"proteinmap/internal/dishes"
	"proteinmap/internal/events"
	"proteinmap/internal/invites"
	"proteinmap/internal/moderation"
	"proteinmap/internal/ratelimit"
	"proteinmap/internal/restaurants"
	"proteinmap/internal/search"
	"proteinmap/internal/storage"
	"proteinmap/internal/wishlist"
	"proteinmap/pkg/database"
	"proteinmap/pkg/logging"
	"proteinmap/pkg/utils"
)

func main() {
	cfg, err := utils.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("load config failed")
	}
	log := logging.New(cfg.Log)

	ctx := context.Background()
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("db open failed")
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		log.WithError(err).Fatal("db migrate failed")
	}

	// Redis backs OTPs and rate limits. Without a URL an in-process server
	// stands in so local runs need no extra services.
	var rdb *redis.Client
	var limiter ratelimit.Limiter
	if cfg.Redis.URL != "" {
		rdb, err = database.OpenRedis(ctx, cfg.Redis.URL)
		if err != nil {
			log.WithError(err).Fatal("redis connect failed")
		}
		limiter = ratelimit.NewRedis(rdb)
	} else {
		mr, err := miniredis.Run()
		if err != nil {
			log.WithError(err).Fatal("embedded redis failed")
		}
		defer mr.Close()
		rdb = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		limiter = ratelimit.NewMemory()
		log.Warn("redis.url not set, using embedded redis and in-process rate limits")
	}
	defer rdb.Close()

	inviteRepo := invites.NewRepo(db)
	if cfg.Auth.BootstrapInvite != "" {
		if err := inviteRepo.EnsureBootstrap(ctx, cfg.Auth.BootstrapInvite); err != nil {
			log.WithError(err).Fatal("bootstrap invite failed")
		}
	}

	var images storage.Images
	if cfg.Storage.Endpoint != "" {
		mi, err := storage.NewMinioImages(ctx, cfg.Storage)
		if err != nil {
			log.WithError(err).Fatal("object storage init failed")
		}
		images = mi
	} else {
		log.Warn("storage.endpoint not set, dish photos disabled")
	}

	var index search.Index = search.Nop{}
	if cfg.Search.MeiliURL != "" {
		meili := search.NewMeili(cfg.Search.MeiliURL, cfg.Search.MeiliKey, log)
		defer meili.Close()
		index = meili
	}

	hub := events.NewHub(log)
	publisher := events.Multi{hub}
	if cfg.RabbitMQ.Domain != "" {
		amqpPub, err := events.NewAMQPPublisher(cfg.RabbitMQ.Domain, cfg.RabbitMQ.Queue, log)
		if err != nil {
			log.WithError(err).Fatal("rabbitmq connect failed")
		}
		defer amqpPub.Close()
		publisher = append(publisher, amqpPub)
	}

	tokenSvc := auth.TokenService{
		Secret:   []byte(cfg.Auth.JWTSecret),
		Issuer:   cfg.Auth.JWTIssuer,
		Duration: cfg.Auth.JWTDuration,
	}
	authRepo := auth.NewRepo(db)
	restRepo := restaurants.NewRepo(db)
	availReader := availability.NewReader(db)

	dishSvc := &dishes.Service{
		DB:           db,
		Repo:         dishes.NewRepo(db),
		Restaurants:  restRepo,
		Availability: availReader,
		Images:       images,
		Index:        index,
		Publisher:    publisher,
		Log:          log.WithField("component", "dishes"),
	}
	modSvc := &moderation.Service{
		Ledger:      moderation.NewLedger(db),
		Evaluator:   moderation.NewEvaluator(db),
		Retractor:   moderation.NewRetractor(db, log.WithField("component", "retraction")),
		Publisher:   publisher,
		Reindexer:   dishSvc,
		Log:         log.WithField("component", "moderation"),
		Concurrency: cfg.Moderation.Concurrency,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(logging.GinMiddleware(log), gin.Recovery())
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	router.GET("/ws", events.WSHandler(hub, cfg.Server.CORSOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/ready", func(c *gin.Context) {
		stats := hub.Stats()
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":     "not_ready",
				"db_error":   err.Error(),
				"ws_clients": stats.WSClients,
			})
			return
		}
		redisStatus := "ok"
		if err := rdb.Ping(ctx).Err(); err != nil {
			redisStatus = err.Error()
		}

		c.JSON(http.StatusOK, gin.H{
			"status":     "ready",
			"db":         "ok",
			"redis":      redisStatus,
			"search":     index.Healthy(),
			"ws_clients": stats.WSClients,
		})
	})

	public := router.Group("/api")
	protected := router.Group("/api", auth.AuthMiddleware(tokenSvc, authRepo))

	authHandler := &auth.Handler{
		Repo:           authRepo,
		Invites:        inviteRepo,
		OTP:            auth.NewOTPStore(rdb, cfg.Auth.OTPTTL, cfg.Auth.OTPMaxAttempts),
		Sender:         auth.LogSender{Log: log.WithField("component", "otp")},
		Limiter:        limiter,
		Tokens:         tokenSvc,
		Limits:         cfg.RateLimit,
		Log:            log.WithField("component", "auth"),
		InvitesPerUser: cfg.Auth.InvitesPerUser,
	}
	authHandler.RegisterRoutes(public)

	restaurants.NewHandler(restRepo).RegisterRoutes(public)
	dishes.NewHandler(dishSvc).RegisterRoutes(public, protected)
	wishlist.NewHandler(wishlist.NewRepo(db), dishSvc, log.WithField("component", "wishlist")).RegisterRoutes(protected)
	moderation.NewHandler(modSvc).RegisterRoutes(protected)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", logging.RequestIDHeader},
		ExposedHeaders:   []string{logging.RequestIDHeader},
		AllowCredentials: true,
	})

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           corsHandler.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("HTTP API server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutdown signal received")
	case err := <-errCh:
		log.WithError(err).Error("server error")
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown error")
	}
	hub.Close()
	log.Info("server stopped")
}
