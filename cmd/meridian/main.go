package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-commerce/meridian-admin/internal/app"
	"github.com/meridian-commerce/meridian-admin/internal/gate"
	"github.com/meridian-commerce/meridian-admin/internal/observability"
	"github.com/meridian-commerce/meridian-admin/internal/platform/cache"
	"github.com/meridian-commerce/meridian-admin/internal/platform/db"
	"github.com/meridian-commerce/meridian-admin/internal/session"
	"github.com/meridian-commerce/meridian-admin/internal/shared"
	"github.com/meridian-commerce/meridian-admin/internal/upstream"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	platformClient := upstream.NewClient(cfg.UpstreamBaseURL)
	if err := platformClient.Ping(ctx); err != nil {
		logger.Warn("upstream ping", slog.Any("error", err))
	}

	store := session.NewStore(redisClient, cfg.SessionTTL)
	sessions := session.NewManager(store, gate.Platform{Client: platformClient}, logger, cfg.SessionCookie, cfg.IsProduction())
	registry := session.NewRegistry(pool)
	auditLogger := shared.NewAuditLogger(pool)
	csrf := shared.NewCSRFManager(cfg.CSRFSecret)
	metrics := observability.NewMetrics()

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()

	authHandler := gate.NewHandler(logger, sessions, registry, auditLogger, metrics, asynqClient, csrf)
	gateMiddleware := gate.Middleware{Logger: logger, Metrics: metrics}
	proxy, err := gate.NewProxy(cfg.UpstreamBaseURL, sessions, logger, metrics)
	if err != nil {
		logger.Error("build proxy", slog.Any("error", err))
		os.Exit(1)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:      logger,
		Config:      cfg,
		Sessions:    sessions,
		AuthHandler: authHandler,
		Proxy:       proxy,
		Gate:        gateMiddleware,
		CSRF:        csrf,
		Metrics:     metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
