package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/dump-ingestion-api/internal/api"
	"github.com/dump-ingestion-api/internal/archive"
	"github.com/dump-ingestion-api/internal/config"
	"github.com/dump-ingestion-api/internal/database"
	"github.com/dump-ingestion-api/internal/models"
	"github.com/dump-ingestion-api/internal/observability"
	"github.com/dump-ingestion-api/internal/repository"
	"github.com/dump-ingestion-api/internal/service"
	"github.com/dump-ingestion-api/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log := logger.New("info", "json")
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	log.Info().Msg("Starting dump ingestion API server...")

	// Initialize tracing
	shutdownTracing, err := observability.InitOTel(context.Background(), &cfg.Telemetry, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize tracing")
	}

	// Initialize database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// Run migrations
	if cfg.Database.AutoMigrate {
		if err := db.RunMigrations(); err != nil {
			log.Fatal().Err(err).Msg("Failed to run database migrations")
		}
	}

	// Initialize archive store
	store, err := archive.NewStoreFromConfig(context.Background(), &cfg.Archive)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize archive store")
	}
	log.Info().Str("backend", cfg.Archive.Backend).Msg("Archive store ready")

	// Initialize repositories and services
	repos := repository.New(db)
	services := service.NewServices(repos, store, models.DefaultRegistry(), cfg, log)

	// Initialize router
	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(services, db, cfg, log)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.ReadTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Shutdown waits for in-flight batches until the timeout
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := shutdownTracing(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to flush traces")
	}

	log.Info().Msg("Server exited gracefully")
}
