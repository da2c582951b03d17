package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/web3-frozen/yield-tracker/internal/browser"
	"github.com/web3-frozen/yield-tracker/internal/cache"
	"github.com/web3-frozen/yield-tracker/internal/config"
	"github.com/web3-frozen/yield-tracker/internal/handler"
	"github.com/web3-frozen/yield-tracker/internal/middleware"
	"github.com/web3-frozen/yield-tracker/internal/monitor"
	"github.com/web3-frozen/yield-tracker/internal/monitor/sources"
	"github.com/web3-frozen/yield-tracker/internal/query"
	"github.com/web3-frozen/yield-tracker/internal/store"
)

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	reg, err := config.LoadRegistry(cfg.SourcesFile)
	if err != nil {
		logger.Error("failed to load source registry", "path", cfg.SourcesFile, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	metaCache, closeCache, err := openCache(cfg, logger)
	if err != nil {
		logger.Error("failed to open cache", "backend", cfg.CacheBackend, "error", err)
		os.Exit(1)
	}
	defer closeCache()

	// Ingestion
	engine, err := monitor.NewEngine(cfg.IngestCron, logger)
	if err != nil {
		logger.Error("invalid INGEST_CRON", "error", err)
		os.Exit(1)
	}
	crawlers := sources.Build(reg, sources.Deps{
		Browser:     browser.NewChrome(browser.Config{ExecPath: cfg.ChromePath}, logger),
		Retry:       monitor.RetryPolicy{Attempts: cfg.BrowserRetries, Backoff: cfg.BrowserBackoff},
		NavTimeout:  cfg.BrowserNavTimeout,
		HTTPTimeout: cfg.HTTPTimeout,
		Logger:      logger,
	})
	for _, c := range crawlers {
		engine.Register(monitor.NewIngestor(c, db, db, logger))
	}

	svc := query.NewService(db, metaCache, logger)
	engine.OnTick(func(ctx context.Context, s monitor.TickSummary) {
		if len(s.Succeeded) > 0 {
			svc.InvalidateMeta(ctx)
		}
	})

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		engine.Run(ctx)
	}()

	// HTTP routes
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(cfg.FrontendOrigin))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", handler.Health())
	r.Get("/readyz", handler.Ready(db))

	r.Route("/api", func(r chi.Router) {
		r.Get("/snapshots/latest", handler.LatestSnapshots(svc))
		r.Get("/snapshots/history", handler.SnapshotHistory(svc))
		r.Get("/meta/networks", handler.Networks(svc))
		r.Get("/meta/categories", handler.Categories(svc))
		r.Get("/meta/assets", handler.Assets(svc))
		r.Get("/activity", handler.Activity(db))
		r.Get("/sources", handler.Sources(engine))
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port, "sources", len(crawlers))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down gracefully")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)

	cancel()
	select {
	case <-engineDone:
	case <-shutdownCtx.Done():
		logger.Warn("ingestion did not stop before shutdown deadline")
	}
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.StoreDriver == "memory" {
		logger.Warn("using in-memory store; data is lost on restart")
		return store.NewMemory(), nil
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	db, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("database connected and migrated")
	return db, nil
}

// openCache returns the meta cache and its cleanup. Redis is retried for up
// to 30s while its secret syncs.
func openCache(cfg config.Config, logger *slog.Logger) (cache.Cache, func(), error) {
	if cfg.CacheBackend != "redis" {
		return cache.NewMemory(cfg.MetaCacheTTL), func() {}, nil
	}
	var (
		rc  *cache.Redis
		err error
	)
	for i := 0; i < 6; i++ {
		rc, err = cache.NewRedis(cfg.RedisURL, cfg.RedisPassword, cfg.MetaCacheTTL)
		if err == nil {
			break
		}
		logger.Warn("redis not ready, retrying...", "attempt", i+1, "error", err)
		time.Sleep(5 * time.Second)
	}
	if err != nil {
		return nil, nil, err
	}
	logger.Info("redis connected for meta cache")
	return rc, func() { _ = rc.Close() }, nil
}
