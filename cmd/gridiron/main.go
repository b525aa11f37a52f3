package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fortuna/gridiron/internal/api/rest"
	"github.com/fortuna/gridiron/internal/api/websocket"
	"github.com/fortuna/gridiron/internal/cache"
	"github.com/fortuna/gridiron/internal/config"
	"github.com/fortuna/gridiron/internal/features"
	"github.com/fortuna/gridiron/internal/logging"
	"github.com/fortuna/gridiron/internal/publisher"
	"github.com/fortuna/gridiron/internal/runner"
	"github.com/fortuna/gridiron/internal/scheduler"
	"github.com/fortuna/gridiron/internal/store"
	"github.com/fortuna/gridiron/internal/store/repository"
	"github.com/sirupsen/logrus"
)

const (
	serviceName    = "gridiron"
	serviceVersion = "1.0.0"
)

func main() {
	cfg, err := config.Load()
	log := logging.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	if err := config.Validate(cfg); err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}

	log.Infof("Starting %s v%s - NFL Feature Service", serviceName, serviceVersion)

	// Initialize database connection
	db, err := store.NewDatabase(cfg.DatabaseURL, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to feature store")
	}
	defer db.Close()

	log.Info("✓ Connected to feature store")

	// Run migrations
	if err := db.RunMigrations(context.Background()); err != nil {
		log.WithError(err).Fatal("Failed to run database migrations")
	}
	log.Info("✓ Database migrations applied")

	// Redis is optional: without it there is no summary cache or run stream
	redisCache := connectRedis(cfg.RedisURL, log)
	if redisCache != nil {
		defer redisCache.Close()
	}

	wsServer := websocket.NewServer(log)

	sources := repository.NewSourceRepository(db)
	featureRepo := repository.NewFeatureRepository(db)
	runRepo := repository.NewRunRepository(db)

	opts := runner.ServiceOptions{
		Defaults: runner.RunSpec{Options: defaultOptions(cfg), ExportDir: cfg.ExportDir},
		Progress: websocket.NewProgressReporter(wsServer.Hub()),
	}
	if redisCache != nil {
		opts.Cache = redisCache
		opts.Events = publisher.NewRedisStreamPublisher(redisCache.Client())
	}
	if err := opts.Defaults.Options.Validate(); err != nil {
		log.WithError(err).Fatal("Invalid feature configuration")
	}

	runService := runner.NewService(runRepo, runner.NewRunner(sources, featureRepo, log), opts, log)
	runService.Start()

	log.Info("✓ Run service started")

	deps := rest.Dependencies{
		DB:       db,
		Features: featureRepo,
		Runs:     runService,
	}
	if redisCache != nil {
		deps.Cache = redisCache
	}

	var sched *scheduler.Orchestrator
	if cfg.EnableScheduler {
		sched, err = scheduler.NewOrchestrator(runService, &scheduler.Config{
			Schedule:   cfg.RebuildSchedule,
			MaxRetries: 3,
			RetryDelay: 5 * time.Second,
		}, log)
		if err != nil {
			log.WithError(err).Fatal("Failed to create scheduler")
		}
		sched.Start()
		deps.Schedule = sched
	}

	// Initialize REST API server
	restServer := rest.NewServer(cfg.RESTPort, deps, log)
	go func() {
		if err := restServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("REST server error")
		}
	}()

	// Initialize WebSocket server
	go func() {
		if err := wsServer.Start(cfg.WSPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("WebSocket server error")
		}
	}()

	log.Infof("✓ %s v%s started successfully", serviceName, serviceVersion)
	log.Infof("  REST API: http://0.0.0.0:%s", cfg.RESTPort)
	log.Infof("  WebSocket: ws://0.0.0.0:%s/ws/runs", cfg.WSPort)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down gracefully...")

	if sched != nil {
		sched.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := restServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("REST API server shutdown error")
	}
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("WebSocket server shutdown error")
	}
	if err := runService.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Run service did not stop in time")
	}

	log.Infof("%s stopped", serviceName)
}

func defaultOptions(cfg config.Config) features.Options {
	opts := features.DefaultOptions()
	if len(cfg.Stats) > 0 {
		opts.Stats = cfg.Stats
	}
	if len(cfg.Windows) > 0 {
		opts.Windows = cfg.Windows
	}
	return opts
}

func connectRedis(url string, log logrus.FieldLogger) *cache.RedisCache {
	if url == "" {
		log.Warn("REDIS_URL not set, run summaries will not be cached or published")
		return nil
	}

	const maxRetries = 5
	retryDelay := 2 * time.Second

	log.Info("Connecting to Redis...")
	for i := 0; i < maxRetries; i++ {
		rc, err := cache.NewRedisCache(url)
		if err == nil {
			log.Info("✓ Connected to Redis")
			return rc
		}

		if i < maxRetries-1 {
			log.WithError(err).Warnf("Redis connection attempt %d/%d failed (retrying in %v)", i+1, maxRetries, retryDelay)
			time.Sleep(retryDelay)
		} else {
			log.WithError(err).Warnf("⚠️  Redis unavailable after %d attempts, continuing without it", maxRetries)
		}
	}
	return nil
}
