// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/andresuchdata/autopo-params/internal/api"
	"github.com/andresuchdata/autopo-params/internal/cache"
	"github.com/andresuchdata/autopo-params/internal/config"
	"github.com/andresuchdata/autopo-params/internal/engine"
	"github.com/andresuchdata/autopo-params/internal/metrics"
	"github.com/andresuchdata/autopo-params/internal/repository/postgres"
	"github.com/andresuchdata/autopo-params/internal/service"
	"github.com/andresuchdata/autopo-params/internal/storage"
	"github.com/andresuchdata/autopo-params/internal/store"
	"github.com/andresuchdata/autopo-params/pkg/logger"
)

const startupTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	logger.SetLevel(cfg.LogLevel)
	if cfg.Server.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), startupTimeout)
	defer cancelStartup()

	// Initialize database
	db, err := postgres.NewDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(startupCtx); err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	// Hydrate the parameter store from the persisted configuration
	paramRepo := postgres.NewParameterRepository(db)
	snap, err := paramRepo.LoadSnapshot(startupCtx)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to load parameters")
	}

	paramStore := store.New(store.WithPersister(paramRepo))
	if err := paramStore.Load(startupCtx, snap); err != nil {
		logger.Log.Fatal().Err(err).Msg("Persisted parameters are invalid")
	}
	logger.Log.Info().Uint64("version", paramStore.Version()).Msg("Parameters loaded")

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Cache
	paramsCache, err := cache.NewEffectiveParamsCache(cfg.Cache)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("Redis unavailable, resolving without cache")
		paramsCache = cache.NewNoopParamsCache()
	}
	defer paramsCache.Close()

	opts := []service.ParameterServiceOption{
		service.WithMetrics(m),
		service.WithResolveWorkers(cfg.Engine.ResolveWorkers),
	}

	// Snapshot export
	if cfg.Storage.Enabled {
		objectStorage, err := storage.NewMinioClient(cfg.Storage)
		if err != nil {
			logger.Log.Fatal().Err(err).Msg("Failed to initialize object storage")
		}
		if err := objectStorage.EnsureBucket(startupCtx); err != nil {
			logger.Log.Fatal().Err(err).Msg("Failed to prepare snapshot bucket")
		}
		publisher := storage.NewSnapshotPublisher(objectStorage)
		if err := publisher.Publish(startupCtx, paramStore.Snapshot()); err != nil {
			logger.Log.Warn().Err(err).Msg("Initial snapshot export failed")
		}
		opts = append(opts, service.WithPublisher(publisher))
	}

	// Initialize services
	paramService := service.NewParameterService(paramStore, paramsCache, opts...)

	scope, err := engine.ParseScope(cfg.Engine.ClassificationScope)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Invalid classification scope")
	}
	salesRepo := postgres.NewSalesRepository(db.DB)
	classificationService := service.NewClassificationService(salesRepo, paramStore, scope, cfg.Engine.SalesWindowDays, m)

	var scheduler *service.Scheduler
	if cfg.Engine.ReclassifyCron != "" {
		scheduler, err = service.NewScheduler(classificationService, cfg.Engine.ReclassifyCron)
		if err != nil {
			logger.Log.Fatal().Err(err).Msg("Failed to create classification scheduler")
		}
		scheduler.Start()
	}

	// Initialize HTTP server
	router := api.NewRouter(&api.Services{
		Parameters:     paramService,
		Classification: classificationService,
		Metrics:        m,
	}, cfg.Server.AllowedOrigins)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Log.Info().Str("port", cfg.Server.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info().Msg("Shutting down server...")

	if scheduler != nil {
		scheduler.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Log.Info().Msg("Server exiting")
}
