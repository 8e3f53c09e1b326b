package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/apache/airavata-custos-sub001/pkg/audit"
	"github.com/apache/airavata-custos-sub001/pkg/config"
	"github.com/apache/airavata-custos-sub001/pkg/observability"
	"github.com/apache/airavata-custos-sub001/pkg/sharing"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.ParsedLogLevel(), os.Stdout)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("sharing service exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	db, err := sql.Open("postgres", cfg.Storage.PostgresURL)
	if err != nil {
		return err
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Storage.PostgresMaxConns)
	db.SetMaxIdleConns(cfg.Storage.PostgresMaxIdle)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Storage.PostgresTimeout)
	err = db.PingContext(pingCtx)
	cancel()
	if err != nil {
		return err
	}

	if err := sharing.RunMigrations(ctx, db); err != nil {
		return err
	}
	if err := audit.Migrate(ctx, db); err != nil {
		return err
	}
	logger.Info("database migrations applied")

	store := sharing.NewStore(db)
	auditor := audit.NewDBLogger(db)
	metrics := observability.NewMetrics(nil)

	// Access cache (optional)
	var cache *sharing.AccessCache
	if cfg.Storage.CacheEnabled {
		cache, err = sharing.NewAccessCache(store, cfg.Storage.RedisURL, cfg.Storage.RedisPassword, cfg.Storage.RedisDB, cfg.Storage.CacheTTL)
		if err != nil {
			return err
		}
		defer cache.Close()
		cache.SetMetrics(metrics)
		logger.WithField("redis_url", cfg.Storage.RedisURL).Info("access cache enabled")
	}

	// Reconciler
	if cfg.Sharing.ReconcilerEnabled {
		reconciler := sharing.NewReconciler(store, logger, cfg.Sharing.ReconcilerSchedule, cfg.Sharing.ReconcilerTimeout)
		reconciler.SetMetrics(metrics)
		if err := reconciler.Start(); err != nil {
			return err
		}
		defer reconciler.Stop()
		logger.WithField("schedule", cfg.Sharing.ReconcilerSchedule).Info("reconciler started")
	}

	// API server
	handlers := sharing.NewHandlers(store, cache, auditor, metrics, logger)
	router := mux.NewRouter()
	handlers.RegisterRoutes(router)

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics server on a separate port for k8s probes
	healthRouter := mux.NewRouter()
	checker := observability.NewHealthChecker(db, nil)
	if cache != nil {
		checker = observability.NewHealthChecker(db, cache.Client())
	}
	healthRouter.HandleFunc("/healthz", checker.Liveness).Methods("GET")
	healthRouter.HandleFunc("/readyz", checker.Readiness).Methods("GET")
	if cfg.Observability.MetricsEnabled {
		healthRouter.Handle("/metrics", metrics.Handler()).Methods("GET")
	}

	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthRouter,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("sharing API server listening")
		if err := apiServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Connection pool gauges
	group.Go(func() error {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				stats := db.Stats()
				metrics.DBConnectionsActive.Set(float64(stats.InUse))
				metrics.DBConnectionsIdle.Set(float64(stats.Idle))
			}
		}
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("API server shutdown failed")
		}
		return healthServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
