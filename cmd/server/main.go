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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/articleforge/articleforge/internal/api"
	"github.com/articleforge/articleforge/internal/breaker"
	"github.com/articleforge/articleforge/internal/config"
	"github.com/articleforge/articleforge/internal/job/store"
	"github.com/articleforge/articleforge/internal/metrics"
	"github.com/articleforge/articleforge/internal/orchestrator"
	"github.com/articleforge/articleforge/internal/pipeline"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (empty = defaults)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	logger.Info("starting articleforge", "port", cfg.Server.Port, "store", cfg.Store.Driver)

	ctx := context.Background()

	jobStore, closeStore, err := newStore(ctx, cfg.Store)
	if err != nil {
		logger.Error("failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	breakers := breaker.NewRegistry(breakerSettings(cfg.Breakers))

	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)

	// Stub providers: the real SERP/LLM/WordPress clients are injected
	// by the deployment build.
	pipe := pipeline.New(
		&pipeline.StubSearch{Delay: 200 * time.Millisecond},
		&pipeline.StubModel{Delay: 500 * time.Millisecond},
		&pipeline.StubPublisher{Delay: 200 * time.Millisecond},
		breakers,
		m,
		logger,
	)

	orc, err := orchestrator.New(orchestrator.Config{
		Store: jobStore,
		Work:  pipe.Run,
		Retry: orchestrator.RetryPolicy{
			MaxRetries: cfg.Queue.MaxRetries,
			BaseDelay:  cfg.Queue.BaseDelay,
			MaxJitter:  cfg.Queue.MaxJitter,
		},
		Metrics: m,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to build orchestrator", "error", err)
		os.Exit(1)
	}

	handler := api.NewHandler(orc, breakers, m, logger)

	mux := http.NewServeMux()
	handler.Routes(mux)
	mux.Handle("GET /metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: mux,
	}

	go func() {
		logger.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := orc.Close(shutdownCtx); err != nil {
		logger.Error("orchestrator drain error", "error", err)
	}

	logger.Info("shutdown complete")
}

// newLogger builds the process logger from config.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

// newStore builds the configured store backend. The returned func
// releases its resources.
func newStore(ctx context.Context, cfg config.StoreConfig) (store.Store, func(), error) {
	switch cfg.Driver {
	case "redis":
		s, err := store.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil

	case "postgres":
		pool, err := store.NewPGPool(ctx, store.PGConfig{
			Host:            cfg.Postgres.Host,
			Port:            cfg.Postgres.Port,
			User:            cfg.Postgres.User,
			Password:        cfg.Postgres.Password,
			Database:        cfg.Postgres.Database,
			SSLMode:         cfg.Postgres.SSLMode,
			MaxConnections:  20,
			MinConnections:  2,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
		})
		if err != nil {
			return nil, nil, err
		}
		s, err := store.NewPostgres(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, s.Close, nil

	default:
		return store.NewMemory(), func() {}, nil
	}
}

// breakerSettings converts config into registry settings.
func breakerSettings(cfgs map[string]config.BreakerConfig) map[string]breaker.Settings {
	if len(cfgs) == 0 {
		return breaker.DefaultSettings()
	}
	settings := make(map[string]breaker.Settings, len(cfgs))
	for service, b := range cfgs {
		settings[service] = breaker.Settings{
			FailureThreshold: b.FailureThreshold,
			RecoveryTimeout:  b.RecoveryTimeout,
		}
	}
	return settings
}
