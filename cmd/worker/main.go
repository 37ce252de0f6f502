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

	"github.com/kirillkom/complaints-rag/internal/bootstrap"
	"github.com/kirillkom/complaints-rag/internal/config"
	"github.com/kirillkom/complaints-rag/internal/observability/logging"
	"github.com/kirillkom/complaints-rag/internal/observability/metrics"
)

const (
	service        = "worker"
	rebuildTimeout = 2 * time.Hour
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_error", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger(service, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("worker_failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if cfg.NATSURL == "" {
		return errors.New("worker needs NATS_URL")
	}

	workerMetrics := metrics.NewWorkerMetrics(service)
	ragMetrics := metrics.NewRAGMetrics(service, workerMetrics.Registry())

	app, err := bootstrap.New(ctx, cfg, logger, ragMetrics)
	if err != nil {
		return err
	}
	defer app.Close()

	if cfg.RebuildOnStart {
		if _, err := app.IndexUC.Rebuild(ctx); err != nil {
			return err
		}
	}

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("worker_metrics_listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSRebuildSubject)
	return app.Events.SubscribeRebuildRequested(ctx, func(handlerCtx context.Context, reason string) error {
		rebuildCtx, cancel := context.WithTimeout(handlerCtx, rebuildTimeout)
		defer cancel()

		workerMetrics.StartRebuild()
		started := time.Now()
		info, err := app.IndexUC.Rebuild(rebuildCtx)
		workerMetrics.FinishRebuild(service, time.Since(started), err)
		if err != nil {
			return err
		}
		logger.Info("rebuild_request_done", "reason", reason, "build_id", info.BuildID)
		return nil
	})
}
