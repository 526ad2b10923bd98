package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/styleflow/internal/api"
	"github.com/dunamismax/styleflow/internal/catalog"
	"github.com/dunamismax/styleflow/internal/config"
	"github.com/dunamismax/styleflow/internal/export"
	"github.com/dunamismax/styleflow/internal/ratelimit"
	"github.com/dunamismax/styleflow/internal/session"
	"github.com/dunamismax/styleflow/internal/storage"
	"github.com/dunamismax/styleflow/internal/store"
	"github.com/dunamismax/styleflow/internal/telemetry"
	"github.com/dunamismax/styleflow/internal/transform"
	"github.com/dunamismax/styleflow/internal/webhook"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.Lmsgprefix)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := transform.Startup(); err != nil {
		logger.Fatalf("image runtime startup failed: %v", err)
	}
	defer transform.Shutdown()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  cfg.Tracing.ServiceName + "-api",
		Exporter:     cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: true,
	}, logger)
	if err != nil {
		logger.Fatalf("tracing setup failed: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Printf("tracing shutdown error: %v", err)
		}
	}()

	styles, err := catalog.LoadFile(cfg.Catalog.Path)
	if err != nil {
		logger.Fatalf("load style catalog: %v", err)
	}
	logger.Printf("style catalog loaded styles=%d", styles.Len())

	var objects *storage.Client
	if cfg.Storage.Enabled() {
		objects, err = storage.NewClient(storage.Config{
			Endpoint: cfg.Storage.Endpoint,
			Access:   cfg.Storage.AccessKey,
			Secret:   cfg.Storage.SecretKey,
			Bucket:   cfg.Storage.Bucket,
			UseSSL:   cfg.Storage.UseSSL,
		})
		if err != nil {
			logger.Fatalf("storage client: %v", err)
		}
		if err := objects.EnsureBucket(ctx); err != nil {
			logger.Fatalf("storage bucket: %v", err)
		}
	}

	provider, closeProvider, err := buildProvider(ctx, cfg, logger, objects)
	if err != nil {
		logger.Fatalf("transform provider: %v", err)
	}
	defer closeProvider()

	records, closeRecords, err := buildRecordStore(ctx, cfg.Database)
	if err != nil {
		logger.Fatalf("record store: %v", err)
	}
	defer closeRecords()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	sessionMetrics := session.NewMetrics(registry)

	recorder := session.NewRecorder(session.RecorderOptions{
		Logger:  logger,
		Metrics: sessionMetrics,
		Records: records,
		Webhooks: webhook.NewClient(webhook.Config{
			Endpoint:      cfg.Webhook.URL,
			SigningSecret: cfg.Webhook.Secret,
			MaxAttempts:   3,
		}),
	})
	defer recorder.Close()

	manager, err := session.NewManager(provider, session.ManagerOptions{
		Logger:           logger,
		Styles:           styles,
		Observer:         recorder,
		Metrics:          sessionMetrics,
		TransformTimeout: cfg.Transform.Timeout,
		IdleTTL:          cfg.Session.IdleTTL,
		OnRemove:         recorder.Forget,
	})
	if err != nil {
		logger.Fatalf("session manager: %v", err)
	}
	defer manager.Close()
	go manager.Run(ctx)

	opts := api.Options{
		Logger:   logger,
		Sessions: manager,
		Catalog:  styles,
		History:  records,
		Registry: registry,
	}
	if objects != nil {
		publisher, err := export.NewPublisher(objects, cfg.Storage.PresignExpiry)
		if err != nil {
			logger.Fatalf("publisher: %v", err)
		}
		opts.Publisher = publisher
	}
	if cfg.RateLimit.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Queue.RedisAddr,
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
		})
		defer redisClient.Close()

		limiter, err := ratelimit.NewRedisTokenBucket(redisClient, cfg.RateLimit.Capacity, cfg.RateLimit.Window, "")
		if err != nil {
			logger.Fatalf("rate limiter: %v", err)
		}
		opts.RateLimiter = limiter
	}

	app, err := api.NewServer(opts)
	if err != nil {
		logger.Fatalf("api server: %v", err)
	}

	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s provider=%s", cfg.API.Addr, cfg.Transform.Provider)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Println("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}

func buildRecordStore(ctx context.Context, cfg config.DatabaseConfig) (store.TransformRecordStore, func(), error) {
	if cfg.DSN == "" {
		return store.NewMemoryRecordStore(0), func() {}, nil
	}
	pg, err := store.NewPostgresRecordStore(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	return pg, func() { _ = pg.Close() }, nil
}
