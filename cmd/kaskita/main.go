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

	"github.com/kaskita/kaskita/internal/app"
	"github.com/kaskita/kaskita/internal/ledger"
	"github.com/kaskita/kaskita/internal/notify"
	"github.com/kaskita/kaskita/internal/observability"
	"github.com/kaskita/kaskita/internal/platform/cache"
	"github.com/kaskita/kaskita/internal/platform/db"
	"github.com/kaskita/kaskita/internal/shared"
	"github.com/kaskita/kaskita/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
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

	redisOpts := jobs.RedisOpt(redisClient)
	queue := jobs.NewClient(redisOpts)
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("queue close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() { _ = inspector.Close() }()

	sessions := shared.NewSessionManager(redisClient, cfg.SessionSecret, cfg.SessionTTL)
	metrics := observability.NewMetrics()

	api := app.BuildAPI(app.Dependencies{
		Logger:       logger,
		Config:       cfg,
		Store:        ledger.NewRepository(pool),
		Redis:        redisClient,
		Idempotency:  shared.NewIdempotencyStore(pool),
		Loader:       sessions,
		Metrics:      metrics,
		Queue:        queue,
		Audit:        notify.NewAuditTrail(pool),
		JobInspector: inspector,
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           api.Handler,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
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
