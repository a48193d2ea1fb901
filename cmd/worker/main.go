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

	"github.com/joho/godotenv"

	"github.com/kirillkom/rpps-atas-assistant/internal/bootstrap"
	"github.com/kirillkom/rpps-atas-assistant/internal/config"
	"github.com/kirillkom/rpps-atas-assistant/internal/core/domain"
	natsqueue "github.com/kirillkom/rpps-atas-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/rpps-atas-assistant/internal/observability/logging"
	"github.com/kirillkom/rpps-atas-assistant/internal/observability/metrics"
)

const serviceName = "rpps-worker"

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	if cfg.NATSURL == "" {
		logger.Error("worker_misconfigured", "error", "NATS_URL is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err.Error())
		os.Exit(1)
	}

	bus, err := natsqueue.NewWithOptions(cfg.NATSURL, cfg.NATSAskSubject, natsqueue.Options{
		ResilienceExecutor: app.Executor,
	})
	if err != nil {
		logger.Error("nats_connect_failed", "error", err.Error())
		os.Exit(1)
	}
	defer bus.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_failed", "error", err.Error())
		}
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSAskSubject, "records", app.Store.Len())
	err = bus.Serve(ctx, cfg.NATSAskTimeout, func(handlerCtx context.Context, question string) domain.Answer {
		started := time.Now()
		workerMetrics.StartRequest()
		answer := app.AnswerUC.Ask(handlerCtx, question)
		workerMetrics.FinishRequest(serviceName, string(answer.Intent), answer.Outcome, answer.Selected, time.Since(started))
		return answer
	})
	if err != nil {
		logger.Error("worker_serve_failed", "error", err.Error())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
