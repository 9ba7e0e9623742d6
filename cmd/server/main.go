package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/opsgrid/backoffice/internal/cache"
	"github.com/opsgrid/backoffice/internal/config"
	"github.com/opsgrid/backoffice/internal/db"
	"github.com/opsgrid/backoffice/internal/domain"
	"github.com/opsgrid/backoffice/internal/export"
	"github.com/opsgrid/backoffice/internal/httpapi"
	"github.com/opsgrid/backoffice/internal/middleware"
	"github.com/opsgrid/backoffice/internal/query"
	"github.com/opsgrid/backoffice/internal/relation"
	"github.com/opsgrid/backoffice/internal/storage"
	"github.com/opsgrid/backoffice/internal/telemetry"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load(".")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.RunMigrations(cfg.Database, "./migrations"); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer conn.Close()

	store, err := newCacheStore(cfg.Cache)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open cache")
	}
	defer func() { _ = store.Close() }()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.New(registry)

	executor := storage.NewPostgres(conn.Pool)
	engine := query.NewEngine(executor, cfg.Engine,
		query.WithCache(store),
		query.WithExpander(relation.NewExpander(executor)),
		query.WithMetrics(metrics),
		query.WithLogger(logger),
	)

	catalog := domain.NewCatalog()
	exporter := export.NewService(engine)
	api := httpapi.NewHandler(engine, catalog, exporter, logger)

	apiMux := http.NewServeMux()
	api.Register(apiMux)

	// Identity headers are required on /api only; health and metrics stay
	// open for probes and scrapers.
	root := http.NewServeMux()
	root.Handle("/api/", middleware.Metrics(metrics, "/api")(middleware.Security(apiMux)))
	root.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	root.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})

	handler := middleware.RequestID(
		middleware.Logging(logger)(
			corsHandler.Handler(root),
		),
	)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
	}
	logger.Info().Msg("server exited")
}

func newCacheStore(cfg config.CacheConfig) (cache.Store, error) {
	if cfg.Backend == "badger" {
		return cache.NewBadger(cfg.Path)
	}
	return cache.NewMemory(cfg.Capacity)
}
