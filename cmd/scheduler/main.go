// Command scheduler runs the collection daemon: the slot cron, the four
// source adapters, normalization, and the Kafka sink, plus the
// operational HTTP surface.
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

	"github.com/redis/go-redis/v9"

	httpserver "github.com/fairyhunter13/jobharvest/internal/adapter/httpserver"
	"github.com/fairyhunter13/jobharvest/internal/adapter/observability"
	"github.com/fairyhunter13/jobharvest/internal/adapter/queue/kafka"
	"github.com/fairyhunter13/jobharvest/internal/adapter/source"
	"github.com/fairyhunter13/jobharvest/internal/app"
	"github.com/fairyhunter13/jobharvest/internal/cache"
	"github.com/fairyhunter13/jobharvest/internal/config"
	"github.com/fairyhunter13/jobharvest/internal/domain"
	"github.com/fairyhunter13/jobharvest/internal/normalize"
	"github.com/fairyhunter13/jobharvest/internal/processor"
	"github.com/fairyhunter13/jobharvest/internal/quota"
	"github.com/fairyhunter13/jobharvest/internal/ratelimit"
	"github.com/fairyhunter13/jobharvest/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
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

	cat, err := config.LoadCatalogue(cfg.CataloguePath)
	if err != nil {
		slog.Error("catalogue load failed", slog.String("path", cfg.CataloguePath), slog.Any("error", err))
		os.Exit(1)
	}

	// Request fabric: result cache, per-domain pacing, bounded worker pool.
	resCache := cache.New(cfg.CacheMaxEntries)
	limiter := ratelimit.New(ratelimit.Config{Floor: cfg.RateFloor, Ceiling: cfg.RateCeiling})
	proc := processor.New(processor.Config{
		Workers:        cfg.ProcessorWorkers,
		QueueBound:     cfg.ProcessorQueueBound,
		SubmitWait:     cfg.ProcessorSubmitWait,
		BatchSize:      cfg.BatchSize,
		BatchTimeout:   cfg.BatchTimeout,
		DefaultTimeout: cfg.RequestTimeout,
		RetryInitial:   cfg.RetryInitialDelay,
		RetryMax:       cfg.RetryMaxDelay,
	}, resCache)
	defer proc.Close()
	fetcher := source.NewFetcher(proc, limiter, logger)

	// Spend ledger: Redis-backed when available so counters survive
	// restarts, in-memory otherwise.
	var (
		ledger domain.Ledger
		rdb    *redis.Client
	)
	quotaCfg := quota.Config{
		MonthlyLimit: cfg.QuotaMonthlyLimit,
		DailyLimit:   cfg.QuotaDailyLimit,
		Location:     cfg.ResetLocation(),
	}
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		ledger = quota.NewRedisLedger(rdb, quotaCfg)
	} else {
		slog.Warn("no redis configured, quota counters will not survive restarts")
		ledger = quota.NewMemoryLedger(quotaCfg)
	}

	rss, err := source.NewRSS(cat.RSS, fetcher, cfg.CacheRSSTTL, logger)
	if err != nil {
		slog.Error("rss adapter init failed", slog.Any("error", err))
		os.Exit(1)
	}
	gov, err := source.NewGovernment(cat.Portals, fetcher, cfg.CacheGovTTL, logger)
	if err != nil {
		slog.Error("government adapter init failed", slog.Any("error", err))
		os.Exit(1)
	}
	comp, err := source.NewCompany(cat.Employers, fetcher, cfg.CacheCompanyTTL, logger)
	if err != nil {
		slog.Error("company adapter init failed", slog.Any("error", err))
		os.Exit(1)
	}

	var serp *source.SerpAdapter
	if cfg.SerpAPIKey != "" {
		serp, err = source.NewSerp(source.SerpConfig{
			Endpoint: cfg.SerpAPIEndpoint,
			APIKey:   cfg.SerpAPIKey,
		}, ledger, proc, limiter, logger)
		if err != nil {
			slog.Error("serp adapter init failed", slog.Any("error", err))
			os.Exit(1)
		}
	} else {
		slog.Warn("no serpapi key configured, paid search disabled")
	}

	sink, err := kafka.NewProducer(cfg.KafkaBrokers, logger)
	if err != nil {
		slog.Error("kafka producer connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer sink.Close()

	normalizer := normalize.New(normalize.NewDedupSet(0), logger)

	deps := scheduler.Deps{
		Government: gov,
		Company:    comp,
		Ledger:     ledger,
		Normalizer: normalizer,
		Sink:       sink,
		Log:        logger,
	}
	deps.RSS = rss
	if serp != nil {
		deps.Serp = serp
	}
	sched, err := scheduler.New(scheduler.Config{
		DailyTarget:     cfg.DailyTarget,
		GapFillFloor:    cfg.GapFillFloor,
		SlotCeiling:     cfg.SlotCeiling,
		DisabledSources: cfg.DisabledSources,
	}, deps, cat.Slots)
	if err != nil {
		slog.Error("scheduler init failed", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go sched.Start(ctx)

	var redisCheck app.RedisClient
	if rdb != nil {
		redisCheck = rdb
	}
	checks := app.BuildReadinessChecks(nil, redisCheck, sink)
	srv := httpserver.NewServer(sched, ledger, checks, logger)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
