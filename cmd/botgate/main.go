package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/relayhq/botgate/internal/admin"
	"github.com/relayhq/botgate/internal/auth"
	"github.com/relayhq/botgate/internal/clientcache"
	"github.com/relayhq/botgate/internal/config"
	"github.com/relayhq/botgate/internal/domain"
	"github.com/relayhq/botgate/internal/proxy"
	"github.com/relayhq/botgate/internal/server"
	"github.com/relayhq/botgate/internal/telemetry"
	"github.com/relayhq/botgate/internal/tenant"
	"github.com/relayhq/botgate/internal/upstream"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	shutdownTracer, err := telemetry.InitTracer("botgate", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	cfg, err := config.Load(os.Getenv("BOTGATE_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Server.AuthToken == "" {
		log.Fatal("server.auth_token is required")
	}
	if cfg.Upstream.BaseURL == "" {
		log.Fatal("upstream.base_url is required")
	}

	registry, cleanup, err := buildRegistry(cfg)
	if err != nil {
		log.Fatalf("Failed to build tenant registry: %v", err)
	}
	defer cleanup()

	settings := admin.NewSettings(cfg.Upstream.APIVersion)

	factory := func(t *tenant.Tenant) (domain.OutboundClient, error) {
		opts := upstream.Options{
			BaseURL:    cfg.Upstream.BaseURL,
			APIVersion: settings.APIVersion(),
			Timeout:    cfg.Upstream.Timeout,
			MaxRetries: cfg.Upstream.MaxRetries,
			Logger:     logger,
		}
		if cfg.Upstream.BlockPrivateIPs {
			opts.Transport = upstream.SafeTransport
		}
		return upstream.New(t.Token, opts)
	}

	cache, err := clientcache.New(registry, factory, cfg.Cache.MaxClients, logger)
	if err != nil {
		log.Fatalf("Failed to create client cache: %v", err)
	}
	defer cache.Close()

	reporter := telemetry.NewReporter(buildSink(cfg, logger),
		telemetry.WithFlushInterval(cfg.Telemetry.FlushInterval),
		telemetry.WithBufferSize(cfg.Telemetry.BufferSize),
		telemetry.WithLogger(logger),
	)
	defer func() {
		if err := reporter.Close(); err != nil {
			logger.Error("failed to close telemetry reporter", slog.String("error", err.Error()))
		}
	}()

	authenticator := auth.New(cfg.Server.AuthToken)
	dispatcher := proxy.NewHandler(cache, reporter, cfg.Server.Prefix, logger)
	adminHandler := admin.NewHandler(registry, cache, settings, logger)

	srv := server.New(cfg.Server.Port, cfg.Server.RequestTimeout, logger)
	srv.Router.Group(func(r chi.Router) {
		r.Use(server.AuthMiddleware(authenticator))
		r.Mount("/admin", adminHandler.Routes())
		// config.Load normalizes the prefix to have no trailing slash, so the
		// registered patterns line up with the handler's prefix stripping.
		if cfg.Server.Prefix == "" {
			r.HandleFunc("/*", dispatcher.Forward)
		} else {
			r.HandleFunc(cfg.Server.Prefix, dispatcher.Forward)
			r.HandleFunc(cfg.Server.Prefix+"/*", dispatcher.Forward)
		}
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Info("gateway started",
		slog.Int("port", cfg.Server.Port),
		slog.String("prefix", cfg.Server.Prefix),
		slog.String("upstream", cfg.Upstream.BaseURL),
		slog.String("telemetry_sink", cfg.Telemetry.Sink),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	case <-sigChan:
		logger.Info("shutdown signal received, stopping gateway")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("gateway shutdown complete")
}

func buildRegistry(cfg *config.Config) (tenant.Registry, func(), error) {
	switch cfg.Registry.Type {
	case "", "static":
		r, err := tenant.NewStaticRegistry(cfg.Tenants)
		return r, func() {}, err
	case "sqlite":
		r, err := tenant.NewSQLiteRegistry(cfg.Registry.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		return r, func() { r.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown registry type %q", cfg.Registry.Type)
	}
}

func buildSink(cfg *config.Config, logger *slog.Logger) telemetry.Sink {
	switch cfg.Telemetry.Sink {
	case "http":
		return telemetry.NewHTTPSink(cfg.Telemetry.HTTP.URL, cfg.Telemetry.HTTP.Token)
	case "redis":
		return telemetry.NewRedisSink(cfg.Telemetry.Redis.Addr, cfg.Telemetry.Redis.Stream)
	default:
		logger.Info("telemetry disabled")
		return telemetry.NoopSink{}
	}
}
