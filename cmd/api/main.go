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

	httpadapter "github.com/kirillkom/complaints-rag/internal/adapters/http"
	"github.com/kirillkom/complaints-rag/internal/bootstrap"
	"github.com/kirillkom/complaints-rag/internal/config"
	"github.com/kirillkom/complaints-rag/internal/observability/logging"
	"github.com/kirillkom/complaints-rag/internal/observability/metrics"
)

const service = "api"

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
		logger.Error("api_failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	httpMetrics := metrics.NewHTTPServerMetrics(service)
	ragMetrics := metrics.NewRAGMetrics(service, httpMetrics.Registry())

	app, err := bootstrap.New(ctx, cfg, logger, ragMetrics)
	if err != nil {
		return err
	}
	defer app.Close()

	info, err := app.PrepareIndex(ctx)
	if err != nil {
		return err
	}
	logger.Info("index_ready", "build_id", info.BuildID, "entries", info.Entries, "backend", cfg.IndexBackend)

	go func() {
		if err := app.FollowSwaps(ctx); err != nil {
			logger.Error("index_follow_failed", "error", err)
		}
	}()

	opts := httpadapter.Options{
		Service:        service,
		RateLimitRPS:   cfg.APIRateLimitRPS,
		RateLimitBurst: cfg.APIRateLimitBurst,
		Logger:         logger,
		Metrics:        httpMetrics,
	}
	if app.Events != nil {
		opts.Rebuilds = app.Events
	}
	handler, err := httpadapter.NewRouter(app.QueryUC, app.IndexUC, opts).Handler()
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      bootstrap.AnswerBudget(cfg) + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api_shutdown_error", "error", err)
	}
	return nil
}
