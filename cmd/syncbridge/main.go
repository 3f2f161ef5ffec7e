package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/tripdesk/syncbridge/internal/config"
	"github.com/tripdesk/syncbridge/internal/crm"
	"github.com/tripdesk/syncbridge/internal/dlq"
	"github.com/tripdesk/syncbridge/internal/extract"
	"github.com/tripdesk/syncbridge/internal/handlers"
	"github.com/tripdesk/syncbridge/internal/logging"
	"github.com/tripdesk/syncbridge/internal/ratelimit"
	"github.com/tripdesk/syncbridge/internal/repository"
	"github.com/tripdesk/syncbridge/internal/server"
	"github.com/tripdesk/syncbridge/internal/service"
	"github.com/tripdesk/syncbridge/internal/sweeper"
	"github.com/tripdesk/syncbridge/internal/transform"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(parseLevel(cfg.Logging.Level), cfg.Logging.Format)
	slog.SetDefault(logger.Logger)

	slog.Info("starting", logging.Service("syncbridge"), slog.Int("port", cfg.Server.Port))

	// Run database migrations
	m, err := migrate.New("file://"+cfg.Database.MigrationsPath, cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to initialize migrations: %v", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("database migrations completed")

	repo, err := repository.NewPostgresRepository(context.Background(), cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer repo.Close()

	// Extraction specs: builtins plus optional per-deployment overrides.
	specs := extract.NewRegistry(extract.Builtin()...)
	if cfg.Ingest.ExtractionSpecs != "" {
		if err := specs.LoadFile(cfg.Ingest.ExtractionSpecs); err != nil {
			log.Fatalf("Failed to load extraction specs: %v", err)
		}
	}

	var limiter ratelimit.RateLimiter = &ratelimit.NoOpRateLimiter{}
	if cfg.Redis.Enabled && cfg.Ingest.RateLimitEnabled {
		limiter, err = ratelimit.NewRedisRateLimiter(cfg.Redis.URL, cfg.Ingest.RateLimitRequests, cfg.Ingest.RateLimitWindow)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer limiter.Close()
	}

	var dlqWriter dlq.Writer
	if cfg.DLQ.Enabled {
		queue, err := dlq.NewJetStreamQueue(context.Background(), cfg.DLQ.NatsURL)
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer queue.Close()
		dlqWriter = queue
	}

	registry := transform.NewRegistry()
	crmClient := crm.New(cfg.CRM.BaseURL, cfg.CRM.Token, cfg.CRM.Timeout)

	ingestSvc := service.NewIngestService(repo, specs, service.NewForwarder(cfg.Ingest.ForwardTimeout), dlqWriter)
	processor := service.NewProcessor(repo, specs, transform.NewEngine(registry))
	dispatcher := service.NewDispatcher(repo, crmClient, registry,
		cfg.Dispatch.BatchSize, cfg.Dispatch.MaxAttempts, cfg.Dispatch.BaseDelay)
	poller := service.NewPoller(repo, crmClient,
		cfg.Poller.PageSize, cfg.Poller.MaxPages, cfg.Poller.ChunkSize)

	router := server.NewRouter(
		handlers.NewIngestHandler(ingestSvc, limiter, cfg.Ingest.MaxBodyBytes),
		handlers.NewPipelineHandler(processor, dispatcher, poller, cfg.Process.BatchSize, cfg.Poller.Secret),
		handlers.NewEventsHandler(repo, processor),
		handlers.NewHealthHandler(repo),
	)

	sweepCtx, stopSweeps := context.WithCancel(context.Background())
	sweeps := sweeper.New(processor, dispatcher, poller, cfg.Process.BatchSize, cfg.Poller.Pipelines)
	go sweeps.RunProcessor(sweepCtx, cfg.Process.Interval)
	go sweeps.RunDispatcher(sweepCtx, cfg.Dispatch.Interval)
	go sweeps.RunPoller(sweepCtx, cfg.Poller.Interval)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("syncbridge listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	stopSweeps()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	slog.Info("server stopped")
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
