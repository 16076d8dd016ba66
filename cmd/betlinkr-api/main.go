// Package main is the entry point for the betlinkr-api server.
// Note: affiliate sign-up, dashboard sessions and payouts live in the
// dashboard service; this API handles tracking, postbacks, attribution and
// commission.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/joho/godotenv"

	"github.com/betlinkr/betlinkr-api/internal/auth"
	"github.com/betlinkr/betlinkr-api/internal/config"
	"github.com/betlinkr/betlinkr-api/internal/database"
	"github.com/betlinkr/betlinkr-api/internal/http/handlers"
	"github.com/betlinkr/betlinkr-api/internal/http/mw"
	"github.com/betlinkr/betlinkr-api/internal/http/routes"
	"github.com/betlinkr/betlinkr-api/internal/logging"
	"github.com/betlinkr/betlinkr-api/internal/repository"
	"github.com/betlinkr/betlinkr-api/internal/service"
	"github.com/betlinkr/betlinkr-api/internal/storage"
	"github.com/betlinkr/betlinkr-api/internal/version"
	"github.com/betlinkr/betlinkr-api/internal/worker"
)

func main() {
	// Initialize logger with TTY detection, source paths, and format control
	logger := logging.SetDefault()

	v := version.Get()
	logger.Info("starting betlinkr-api",
		"version", v.Version,
		"commit", v.Commit,
		"built", v.Date,
		"go_version", v.GoVersion,
	)

	// Load .env for local development; ignored when absent
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := database.MigrateWithLogger(db, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	schemaVersion, err := database.GetLatestSchemaVersion(db)
	if err != nil {
		logger.Warn("failed to get schema version", "error", err)
	} else if schemaVersion != "" {
		migrationCount, _ := database.GetMigrationCount(db)
		logger.Info("database schema ready", "schema_version", schemaVersion, "migrations_applied", migrationCount)
	}

	repos := repository.NewRepositories(db)

	services, err := service.NewServices(cfg, repos, logger)
	if err != nil {
		logger.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}

	verifier := auth.NewVerifier(cfg.JWTSecret)

	// Start the webhook notifier
	notifier := worker.New(
		repos.WebhookDelivery,
		services.Notify,
		worker.Config{
			PollInterval: cfg.NotifierPollInterval,
			Concurrency:  cfg.NotifierConcurrency,
		},
		logger,
	)
	ctx, cancel := context.WithCancel(context.Background())
	notifier.Start(ctx)

	// Create router
	router := chi.NewRouter()

	// Global middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)

	// S3-backed IP blocklist, shared with the dashboard that maintains it.
	// Early in the chain so blocked click traffic is rejected cheaply.
	store, err := storage.New(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize object storage", "error", err)
		os.Exit(1)
	}
	if store.Enabled() {
		blocklist := mw.NewIPBlocklist(mw.BlocklistConfig{
			S3Client: store.S3(),
			Bucket:   cfg.BlocklistBucket,
			Key:      cfg.BlocklistKey,
			Logger:   logger,
		})
		router.Use(blocklist.Middleware())
		logger.Info("IP blocklist enabled", "bucket", cfg.BlocklistBucket, "key", cfg.BlocklistKey)
	}

	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(cfg.RequestTimeout))

	// CORS for the dashboard frontend
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Request size limit (64KB): postbacks and management calls are small
	router.Use(middleware.RequestSize(64 * 1024))

	// Per-IP rate limit on the whole surface; tracking gets its own below
	router.Use(httprate.LimitByIP(cfg.TrackingRateLimit, time.Minute))

	// Huma API with OpenAPI docs for the management surface
	humaConfig := huma.DefaultConfig("Betlinkr API", version.Version)
	humaConfig.Info.Description = "Conversion attribution and commission API for betting-house affiliate programs."
	humaConfig.Servers = []*huma.Server{
		{URL: cfg.BaseURL, Description: "API Server"},
	}
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		mw.SecurityScheme: {
			Type:        "http",
			Scheme:      "bearer",
			Description: "Dashboard-issued affiliate session token.",
		},
	}

	api := humachi.New(router, humaConfig)
	api.UseMiddleware(mw.HumaAuth(api, verifier))

	// Typed management routes
	offerHandler := handlers.NewOfferHandler(services.Offer, services.Stats)
	linkHandler := handlers.NewLinkHandler(services.Link, services.Stats)
	webhookHandler := handlers.NewWebhookHandler(services.Webhook)
	statsHandler := handlers.NewStatsHandler(services.Stats)
	routes.Register(api, handlers.New(offerHandler, linkHandler, webhookHandler, statsHandler, db))

	// Raw public surface: house postbacks and visitor tracking
	postbackHandler := handlers.NewPostbackHandler(services.Postback, logger)
	trackingHandler := handlers.NewTrackingHandler(services.Tracking, services.Postback, cfg, logger)

	router.Get("/ref/{code}", trackingHandler.HandleRedirect)
	router.Get("/api/tracking/attribution", trackingHandler.HandleAttribution)
	router.Post("/api/tracking/convert", trackingHandler.HandleConvert)
	router.Post("/api/tracking/registration", trackingHandler.HandleFirstPartyRegistration)
	router.Post("/api/tracking/deposit", trackingHandler.HandleFirstPartyDeposit)

	// Houses send GET or POST depending on platform; accept both.
	for _, method := range []func(pattern string, h http.HandlerFunc){router.Get, router.Post} {
		method("/api/postback/{token}/registration", postbackHandler.HandleRegistration)
		method("/api/postback/{token}/deposit", postbackHandler.HandleDeposit)
		method("/api/postback/receive", postbackHandler.HandleReceive)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		<-sigChan

		logger.Info("shutting down server")

		// Stop the notifier first so in-flight deliveries finish
		cancel()
		notifier.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("starting server", "port", cfg.Port, "base_url", cfg.BaseURL)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
