package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/meridian-data/catalog-engine/pkg/config"
	"github.com/meridian-data/catalog-engine/pkg/database"
	"github.com/meridian-data/catalog-engine/pkg/handlers"
	"github.com/meridian-data/catalog-engine/pkg/pipeline"
	"github.com/meridian-data/catalog-engine/pkg/repositories"
	"github.com/meridian-data/catalog-engine/pkg/retry"
	"github.com/meridian-data/catalog-engine/pkg/services"
	"github.com/meridian-data/catalog-engine/pkg/services/events"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", cfg.Database.Database),
		zap.String("host", cfg.Database.Host))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The database may still be coming up alongside us.
	db, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*database.DB, error) {
		return database.Connect(ctx, &database.Config{
			URL:             cfg.Database.URL(),
			MaxConnections:  cfg.Database.MaxConnections,
			MaxConnLifetime: time.Duration(cfg.Database.ConnLifetimeMinutes) * time.Minute,
			MaxConnIdleTime: time.Duration(cfg.Database.ConnIdleMinutes) * time.Minute,
		})
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := database.RunMigrations(cfg.Database.URL(), cfg.Database.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	entityRepo := repositories.NewEntityRepository()
	relationRepo := repositories.NewRelationshipRepository()
	subscriptionRepo := repositories.NewSubscriptionRepository()

	// Bus consumers run outside any HTTP request, so their context carries
	// the pool querier directly.
	busCtx := database.WithQuerier(ctx, db.Pool)
	bus := events.NewBus(busCtx, nil, subscriptionRepo, cfg.Events.MaxRetries, logger)

	entityService := services.NewEntityService(entityRepo, relationRepo, db, bus, logger)
	lineageService := services.NewLineageService(entityRepo, relationRepo, logger)
	subscriptionService := services.NewSubscriptionService(subscriptionRepo, bus, logger)

	if err := subscriptionService.Start(busCtx); err != nil {
		logger.Fatal("Failed to register subscriptions", zap.Error(err))
	}

	mux := http.NewServeMux()
	dbMiddleware := handlers.Middleware(database.Middleware(db))

	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewEntityHandler(entityService, logger).RegisterRoutes(mux, dbMiddleware)
	handlers.NewLineageHandler(lineageService, logger).RegisterRoutes(mux, dbMiddleware)
	handlers.NewSubscriptionHandler(subscriptionService, logger).RegisterRoutes(mux, dbMiddleware)

	// Pipeline deploy/trigger routes only exist when a runner is configured.
	if cfg.Pipeline.BaseURL != "" {
		runner := pipeline.NewClient(cfg.Pipeline, logger)
		pipelineService := services.NewPipelineService(entityRepo, runner, logger)
		handlers.NewPipelineHandler(pipelineService, logger).RegisterRoutes(mux, dbMiddleware)
	}

	server := &http.Server{
		Addr:    cfg.BindAddr + ":" + cfg.Port,
		Handler: mux,
	}

	go func() {
		logger.Info("Starting catalog-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server shutdown incomplete", zap.Error(err))
	}
	bus.Shutdown(time.Duration(cfg.Events.ShutdownTimeoutSeconds) * time.Second)
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" || env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
