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
	"go.uber.org/zap"

	"github.com/photocatalog/backend/internal/application/reconcile"
	domain "github.com/photocatalog/backend/internal/domain/reconcile"
	"github.com/photocatalog/backend/internal/infrastructure/cache"
	"github.com/photocatalog/backend/internal/infrastructure/config"
	"github.com/photocatalog/backend/internal/infrastructure/logger"
	"github.com/photocatalog/backend/internal/infrastructure/persistence"
	"github.com/photocatalog/backend/internal/infrastructure/scheduler"
	"github.com/photocatalog/backend/internal/infrastructure/telemetry"
	"github.com/photocatalog/backend/internal/interfaces/http/handler"
	"github.com/photocatalog/backend/internal/interfaces/http/router"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	ctx := context.Background()

	telCfg := telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
		MetricsInterval:   cfg.Telemetry.MetricsInterval,
	}
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	logProvider, err := telemetry.NewLoggerProvider(ctx, telCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize log provider", zap.Error(err))
	}
	log = logProvider.Bridge(log, logger.ParseLevel(cfg.Log.Level))

	log.Info("Starting catalog inventory sync",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	// Catalog database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh),
		logger.WithDatabaseName(cfg.Database.DBName),
	)
	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to catalog database", zap.Error(err))
	}
	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled: cfg.Telemetry.Enabled,
		DBName:  cfg.Database.DBName,
	}, log); err != nil {
		log.Warn("Failed to register database tracing", zap.Error(err))
	}
	log.Info("Catalog database connected", zap.String("db", cfg.Database.DBName))

	// External inventory system of record
	externalDB, err := persistence.OpenExternalInventory(ctx, &cfg.External.Database)
	if err != nil {
		log.Fatal("Failed to connect to external inventory database", zap.Error(err))
	}
	log.Info("External inventory database connected",
		zap.String("db", cfg.External.Database.DBName),
		zap.String("table", cfg.External.Table),
	)

	// Repositories and reconciler
	source := persistence.NewExternalInventoryReader(externalDB, cfg.External)
	entries := persistence.NewGormEntryRepository(db.DB)
	reservations := persistence.NewGormReservationRepository(db.DB)

	reconciler := reconcile.NewReconciler(source, entries, reservations, reconcile.Config{
		BatchSize:      cfg.Reconcile.BatchSize,
		ImageExtension: cfg.Reconcile.ImageExtension,
		PadWidth:       cfg.Reconcile.PadWidth,
		SampleSize:     cfg.Reconcile.ReportSampleSize,
	}, log)

	reconcileMetrics, err := telemetry.NewReconcileMetrics(telemetry.ReconcileMetricsConfig{
		Meter:  meterProvider.Meter("catalog-sync"),
		Logger: log,
	})
	if err != nil {
		log.Fatal("Failed to create reconcile metrics", zap.Error(err))
	}
	reconciler.SetMetrics(reconcileMetrics)

	// Scheduler
	syncScheduler, err := scheduler.NewReconcileScheduler(scheduler.ReconcileSchedulerConfig{
		Mode:            domain.Mode(cfg.Reconcile.Mode),
		Interval:        cfg.Reconcile.Interval(),
		InitialLookback: cfg.Reconcile.InitialLookback(),
		StaleAfter:      cfg.Reconcile.StaleAfter,
		WarmUpDelay:     cfg.Reconcile.WarmUpDelay,
		LockTTL:         cfg.Redis.LockTTL,
	}, reconciler, log)
	if err != nil {
		log.Fatal("Invalid reconcile scheduler configuration", zap.Error(err))
	}
	syncScheduler.SetSkipRecorder(reconcileMetrics)

	var redisCloser func() error
	if cfg.Redis.Enabled {
		client, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			// in-process single flight still applies
			log.Warn("Redis unavailable, run lock disabled", zap.Error(err))
		} else {
			syncScheduler.SetRunLock(cache.NewRedisRunLock(client, cfg.Redis.LockKey, log))
			redisCloser = client.Close
			log.Info("Redis run lock enabled",
				zap.String("addr", cfg.Redis.Addr()),
				zap.String("key", cfg.Redis.LockKey),
			)
		}
	}

	if cfg.Reconcile.Enabled {
		if err := syncScheduler.Start(ctx, 0); err != nil {
			log.Fatal("Failed to start reconcile scheduler", zap.Error(err))
		}
	} else {
		log.Info("Reconcile scheduler not started at boot; use the admin endpoint to start it")
	}

	// HTTP
	ginMode := gin.DebugMode
	if cfg.App.Env == "production" {
		ginMode = gin.ReleaseMode
	}
	engine, err := router.NewEngine(router.EngineConfig{
		GinMode:        ginMode,
		ServiceName:    cfg.Telemetry.ServiceName,
		Tracing:        cfg.Telemetry.Enabled,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		Meter:          meterProvider.Meter("catalog-sync-http"),
	}, log)
	if err != nil {
		log.Fatal("Failed to create HTTP engine", zap.Error(err))
	}

	systemHandler := handler.NewSystemHandler(cfg.App.Name, version, db)
	syncHandler := handler.NewInventorySyncHandler(syncScheduler)

	engine.GET("/health", systemHandler.Health)
	router.NewRouter(engine).
		Register(router.NewSystemGroup(systemHandler)).
		Register(router.NewInventorySyncGroup(syncHandler, cfg.Admin.Token)).
		Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := syncScheduler.Shutdown(shutdownCtx); err != nil {
		log.Error("Reconcile scheduler did not stop cleanly", zap.Error(err))
	}
	if redisCloser != nil {
		if err := redisCloser(); err != nil {
			log.Error("Error closing Redis client", zap.Error(err))
		}
	}
	if err := externalDB.Close(); err != nil {
		log.Error("Error closing external inventory database", zap.Error(err))
	}
	if err := db.Close(); err != nil {
		log.Error("Error closing catalog database", zap.Error(err))
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down meter provider", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down tracer provider", zap.Error(err))
	}
	if err := logProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down log provider", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
