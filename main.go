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

	"github.com/nats-io/nats.go"

	"scaler-service/cache"
	"scaler-service/config"
	"scaler-service/db"
	"scaler-service/handlers"
	"scaler-service/logging"
	"scaler-service/middleware"
	"scaler-service/services"
	"scaler-service/workers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := db.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()
	logger.Info("connected to database", "dialect", store.Dialect())

	checks := map[string]handlers.Pinger{"database": store}

	var remote cache.Remote
	if cfg.RedisURL != "" {
		redisDB, err := db.NewRedisDB(ctx, cfg.RedisURL, logger)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer redisDB.Close()
		remote = redisDB
		checks["redis"] = redisDB
	}

	linkCache := cache.New(remote, cache.Options{LocalTTL: cfg.LocalCacheTTL, Timeout: cfg.CacheTimeout}, logger)
	prePopulateCache(ctx, store, linkCache, logger)

	broker := handlers.NewSSEBroker()
	recorder := workers.NewRecorder(store, workers.Options{
		Workers:       cfg.AnalyticsWorkers,
		QueueSize:     cfg.AnalyticsQueueSize,
		BatchSize:     cfg.AnalyticsBatchSize,
		FlushInterval: cfg.AnalyticsFlushInterval,
	}, logger)
	recorder.SetNotifier(broker)
	// Shutdown is driven by Stop below, not by the signal context
	recorder.Start(context.Background())

	metrics := map[string]handlers.MetricsSource{
		"cache":     func() any { return linkCache.Stats() },
		"analytics": func() any { return recorder.Stats() },
	}

	var scheduler services.AnalyticsScheduler = recorder
	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = workers.ConnectNATS(cfg.NATSURL, logger)
		if err != nil {
			recorder.Stop(context.Background())
			return err
		}
		if _, err := workers.SubscribeClicks(natsConn, recorder, logger); err != nil {
			natsConn.Close()
			recorder.Stop(context.Background())
			return err
		}
		publisher := workers.NewNATSPublisher(natsConn, recorder, logger)
		scheduler = publisher
		checks["nats"] = natsCheck{natsConn}
		metrics["nats_published"] = func() any { return publisher.Published() }
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		Shortener: services.NewShortener(store, linkCache, services.ShortenerOptions{
			CodeOffset: cfg.CodeOffset,
			CacheTTL:   cfg.CacheTTL,
		}, logger),
		Resolver:       services.NewResolver(store, linkCache, scheduler, cfg.CacheTTL, logger),
		Links:          store,
		Dashboard:      services.NewDashboard(store),
		Clicks:         recorder,
		Broker:         broker,
		Checks:         checks,
		Metrics:        metrics,
		Requests:       &middleware.RequestCounter{},
		BaseURL:        cfg.BaseURL,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		// No WriteTimeout: SSE streams stay open
	}
	server.RegisterOnShutdown(broker.Close)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port, "base_url", cfg.BaseURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		recorder.Stop(context.Background())
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if natsConn != nil {
		drainNATS(shutdownCtx, natsConn, logger)
	}

	if err := recorder.Stop(shutdownCtx); err != nil {
		logger.Error("analytics drain incomplete", "error", err)
	}

	logger.Info("server stopped")
	return nil
}

// prePopulateCache loads the most recent links into the in-process cache
func prePopulateCache(ctx context.Context, store *db.SQLStore, c *cache.Cache, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	links, err := store.ListRecent(ctx, services.MaxListLimit)
	if err != nil {
		logger.Warn("failed to pre-populate cache", "error", err)
		return
	}
	logger.Info("pre-populated cache", "links", c.Warm(links))
}

// drainNATS flushes pending publishes and lets subscriptions deliver what
// they already received before the recorder stops
func drainNATS(ctx context.Context, conn *nats.Conn, logger *slog.Logger) {
	if err := conn.Drain(); err != nil {
		logger.Warn("nats drain failed", "error", err)
		conn.Close()
		return
	}

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for !conn.IsClosed() {
		select {
		case <-ctx.Done():
			conn.Close()
			return
		case <-ticker.C:
		}
	}
}

type natsCheck struct {
	conn *nats.Conn
}

func (c natsCheck) Ping(ctx context.Context) error {
	if !c.conn.IsConnected() {
		return fmt.Errorf("nats status %s", c.conn.Status())
	}
	return nil
}
