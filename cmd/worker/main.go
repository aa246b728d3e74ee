// Package main is the entry point of the progression worker. The worker
// owns the background side of the engine: database migrations, the event
// bus, the scheduled population rarity scan, and the metrics endpoint.
// The synchronous API surface (record stat, equip title, queries) is the
// application facade, embedded by the app backend.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capsulehub/capsule-progression-hub/config"
	"github.com/capsulehub/capsule-progression-hub/internal/application"
	"github.com/capsulehub/capsule-progression-hub/internal/application/eventhandler"
	"github.com/capsulehub/capsule-progression-hub/internal/application/saga"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/catalog"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/progression"
	"github.com/capsulehub/capsule-progression-hub/internal/infrastructure/messaging"
	"github.com/capsulehub/capsule-progression-hub/internal/infrastructure/persistence/memory"
	"github.com/capsulehub/capsule-progression-hub/internal/infrastructure/persistence/postgres"
	"github.com/capsulehub/capsule-progression-hub/internal/infrastructure/persistence/redis"
	"github.com/capsulehub/capsule-progression-hub/internal/infrastructure/scheduler"
	"github.com/capsulehub/capsule-progression-hub/internal/infrastructure/scheduler/jobs"
	"github.com/capsulehub/capsule-progression-hub/pkg/logger"
	"github.com/capsulehub/capsule-progression-hub/pkg/metrics"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	appLog := logger.New(os.Stdout, logger.ParseLevel(cfg.Observability.LogLevel))

	log.Info("starting progression worker",
		"env", string(cfg.App.Environment),
		"version", cfg.App.Version,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. METRICS
	// ─────────────────────────────────────────────────────────────────────────
	meter := metrics.NewManager()

	var metricsServer *http.Server
	if cfg.Observability.MetricsEnabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(meter.Registry(), promhttp.HandlerOpts{}))
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Observability.MetricsPort),
			Handler: mux,
		}
		go func() {
			log.Info("metrics endpoint listening", "port", cfg.Observability.MetricsPort)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server failed", "error", err)
			}
		}()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. DATABASE
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database")
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbConn.Close()

	log.Info("checking database migrations")
	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database schema is up to date")

	// ─────────────────────────────────────────────────────────────────────────
	// 5. RARITY STORE (Redis, or in-memory when disabled)
	// ─────────────────────────────────────────────────────────────────────────
	var rarityStore progression.RarityStore
	if cfg.Redis.Disabled {
		log.Warn("redis disabled, rarity sheet will not survive restarts")
		rarityStore = memory.NewRarityStore()
	} else {
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		redisCache, err := redis.NewCache(redisCfg)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisCache.Close()

		rarityStore = redis.NewRarityStore(redisCache)
		log.Info("redis connection established")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. CATALOG AND REPOSITORIES
	// ─────────────────────────────────────────────────────────────────────────
	cat, err := loadCatalog(cfg)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	log.Info("achievement catalog loaded",
		"version", cat.Version(), "definitions", cat.Len())

	statRepo := postgres.NewStatRepository(dbConn)
	ledger := postgres.NewLedgerRepository(dbConn)
	profileRepo := postgres.NewTitleProfileRepository(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = log
	busConfig.AsyncMode = cfg.Features.IsEnabled(config.FeatureAsyncEvents, "")
	busConfig.WorkerPoolSize = cfg.Engine.EventWorkers
	eventBus := messaging.NewInMemoryEventBus(busConfig)
	defer func() {
		log.Info("closing event bus")
		_ = eventBus.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 8. APPLICATION FACADE
	// ─────────────────────────────────────────────────────────────────────────
	flowConfig := saga.DefaultUnlockFlowConfig()
	flowConfig.MaxUnlocksPerRun = cfg.Engine.MaxUnlocksPerRun

	engine, err := application.New(application.Dependencies{
		Catalog:     cat,
		StatRepo:    statRepo,
		Ledger:      ledger,
		ProfileRepo: profileRepo,
		RarityStore: rarityStore,
		EventBus:    eventBus,
		Metrics:     meter,
		Logger:      appLog,
		UnlockFlow:  &flowConfig,
	})
	if err != nil {
		return fmt.Errorf("failed to build progression engine: %w", err)
	}
	_ = engine // the embedding backend calls the facade; the worker only hosts it

	if cfg.Features.IsEnabled(config.FeatureRarityNudge, "") {
		nudger := eventhandler.NewRarityNudger(rarityStore, appLog)
		if err := nudger.Register(eventBus); err != nil {
			return fmt.Errorf("failed to register rarity nudger: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(scheduler.WithLogger(log))

		scanConfig := jobs.DefaultRecomputeRarityConfig()
		scanConfig.Timeout = cfg.Scheduler.JobTimeout
		scanJob := jobs.NewRecomputeRarityJob(
			cat, statRepo, ledger, rarityStore, eventBus, meter, log, scanConfig)

		if err := sched.Register(scanJob, scheduler.NewIntervalSchedule(cfg.Scheduler.RarityScanInterval)); err != nil {
			return fmt.Errorf("failed to register rarity scan job: %w", err)
		}

		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}

		// Publish an initial sheet instead of waiting a full interval.
		if err := sched.RunNow(ctx, scanJob.Name()); err != nil {
			log.Warn("initial rarity scan failed", "error", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 10. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("progression worker is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-sigCh
	log.Info("received shutdown signal", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if sched != nil {
		sched.Stop()
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}

	log.Info("shutdown completed")
	return nil
}

// loadCatalog loads the configured catalog file, or the built-in catalog
// when no path is set.
func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if cfg.Catalog.Path == "" {
		return catalog.Default(), nil
	}
	return catalog.LoadFile(cfg.Catalog.Path)
}

// setupLogger configures structured logging for the worker process.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}
