package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/wordbloom/analytics-backend/internal/clients/rediscache"
	"github.com/wordbloom/analytics-backend/internal/clients/studystore"
	"github.com/wordbloom/analytics-backend/internal/config"
	"github.com/wordbloom/analytics-backend/internal/db"
	"github.com/wordbloom/analytics-backend/internal/handlers"
	"github.com/wordbloom/analytics-backend/internal/logger"
	"github.com/wordbloom/analytics-backend/internal/middleware"
	"github.com/wordbloom/analytics-backend/internal/observability"
	"github.com/wordbloom/analytics-backend/internal/repos"
	"github.com/wordbloom/analytics-backend/internal/server"
	"github.com/wordbloom/analytics-backend/internal/services"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Config
	cfg, err := config.Load(log)
	if err != nil {
		log.Error("Could not load config", "error", err)
		os.Exit(1)
	}

	// Tracing
	ctx := context.Background()
	if shutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "analytics-backend",
		Environment: os.Getenv("DEPLOY_ENV"),
		Version:     os.Getenv("SERVICE_VERSION"),
	}); shutdown != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
		}()
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Clients
	log.Info("Setting up clients from main...")
	storeClient, err := studystore.NewClient(log, cfg.Store, cfg.Aggregation.PageSize)
	if err != nil {
		log.Error("Could not init study store client", "error", err)
		os.Exit(1)
	}
	var edgeCache rediscache.EdgeCache
	edgeCache, err = rediscache.NewEdgeCache(log, cfg.Redis.Addr)
	if err != nil {
		// Edge tier is optional; the durable tier still serves cache hits.
		log.Warn("Edge cache unavailable, continuing without it", "error", err)
		edgeCache = nil
	} else {
		defer edgeCache.Close()
	}

	// Repos
	log.Info("Setting up repos from main...")
	leaderboardCacheRepo := repos.NewLeaderboardCacheRepo(thePG, log)
	refreshRunRepo := repos.NewRefreshRunRepo(thePG, log)

	// Services
	log.Info("Setting up services from main...")
	authService, err := services.NewAuthService(log, cfg.Server.JWTSecretKey)
	if err != nil {
		log.Error("Could not init AuthService", "error", err)
		os.Exit(1)
	}
	aggregator := services.NewAggregator(storeClient, log, cfg.Aggregation)
	leaderboardService := services.NewLeaderboardService(
		log,
		storeClient,
		aggregator,
		edgeCache,
		leaderboardCacheRepo,
		cfg.Leaderboard.TopN,
		cfg.Leaderboard.CacheVersion,
		cfg.Redis.EdgeTTL(),
	)
	if cfg.Refresher.Enabled {
		refresher := services.NewRefresherService(log, leaderboardService, refreshRunRepo, cfg.Refresher)
		refresher.Start(ctx)
	}

	// Handlers
	log.Info("Setting up handlers from main...")
	analyticsHandler := handlers.NewAnalyticsHandler(log, leaderboardService)
	authMiddleware := middleware.NewAuthMiddleware(log, authService)

	// Router
	router := server.NewRouter(server.RouterConfig{
		CORSOrigins:      cfg.Server.CORSOrigins,
		AuthMiddleware:   authMiddleware,
		AnalyticsHandler: analyticsHandler,
	})

	log.Info("Starting server", "port", cfg.Server.Port)
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		log.Error("Server exited", "error", err)
		os.Exit(1)
	}
}
