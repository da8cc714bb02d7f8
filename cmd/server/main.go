package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"parasearch/internal/dictionary"
	"parasearch/internal/events"
	"parasearch/internal/fetcher"
	"parasearch/internal/httpapi"
	"parasearch/internal/index"
	"parasearch/internal/paragraphs"
	"parasearch/internal/ranking"
	"parasearch/internal/search"
	"parasearch/internal/store"
	"parasearch/pkg/config"
	"parasearch/pkg/health"
	"parasearch/pkg/kafka"
	"parasearch/pkg/logger"
	"parasearch/pkg/metrics"
	"parasearch/pkg/middleware"
	"parasearch/pkg/postgres"
	pkgredis "parasearch/pkg/redis"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup("parasearch", cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting paragraph search service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("postgres unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	pgStore := store.NewPostgresStore(db)
	if err := pgStore.EnsureSchema(ctx); err != nil {
		slog.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}
	slog.Info("paragraph store ready", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)

	// The index cache tolerates Redis being down at boot; availability is
	// probed per request and the store scan path covers the gap.
	redisClient := pkgredis.NewClientLazy(cfg.Redis)
	defer redisClient.Close()

	cache := index.New(redisClient, cfg.Index, cfg.Redis.OpTimeout)
	engine := search.NewEngine(cache, pgStore)
	rank := ranking.NewReader(cache, pgStore)
	fetchClient := fetcher.New(cfg.Sources)
	definer := dictionary.NewCachedDefiner(
		dictionary.NewClient(cfg.Sources),
		redisClient,
		cfg.Redis.DefCacheTTL,
	)

	var collector *events.Collector
	if cfg.Kafka.Enabled() {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.EventsTopic)
		defer producer.Close()
		collector = events.NewCollector(producer, 10000)
		collector.Start(ctx)
		defer collector.Close()
		slog.Info("event stream enabled", "topic", cfg.Kafka.EventsTopic)
	}

	svc := paragraphs.New(pgStore, cache, engine, rank, fetchClient, definer, collector, cfg.Index.TopWordsDefault)

	if cfg.Index.RebuildOnStart {
		if err := svc.EnsureIndex(ctx); err != nil {
			slog.Warn("startup index check failed, continuing degraded", "error", err)
		}
	}

	checker := health.NewChecker()
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if err := db.DB.PingContext(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	h := httpapi.New(svc, m, cfg.Server.FetchPerMinute)
	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("paragraph search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("paragraph search service stopped")
}
