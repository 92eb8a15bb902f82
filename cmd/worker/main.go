// Command worker drains the normalized job stream into PostgreSQL and
// runs the retention sweep.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fairyhunter13/jobharvest/internal/adapter/observability"
	"github.com/fairyhunter13/jobharvest/internal/adapter/queue/kafka"
	"github.com/fairyhunter13/jobharvest/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/jobharvest/internal/app"
	"github.com/fairyhunter13/jobharvest/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	slog.Info("starting worker", slog.String("env", cfg.AppEnv))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("database connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		slog.Error("schema bootstrap failed", slog.Any("error", err))
		os.Exit(1)
	}
	repo := postgres.NewJobRepo(pool)

	if cfg.RetentionDays > 0 {
		retention := postgres.NewRetentionService(pool, cfg.RetentionDays, logger)
		go retention.RunPeriodic(ctx, cfg.RetentionInterval)
		slog.Info("retention service started",
			slog.Int("retention_days", cfg.RetentionDays),
			slog.Duration("interval", cfg.RetentionInterval))
	}

	consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroup, repo, logger)
	if err != nil {
		slog.Error("kafka consumer connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer consumer.Close()

	// Metrics and health probes on a dedicated port.
	checks := app.BuildReadinessChecks(pool, nil, consumer)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		for name, check := range checks {
			cctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			err := check(cctx)
			cancel()
			if err != nil {
				slog.Warn("readiness check failed", slog.String("check", name), slog.Any("error", err))
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("worker metrics server starting", slog.Int("port", cfg.MetricsPort))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("consumer stopped", slog.Any("error", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	slog.Info("worker stopped")
}
