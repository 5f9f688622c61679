package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-tours/internal/app"
	jobmetrics "github.com/odyssey-erp/odyssey-tours/internal/jobs"
	"github.com/odyssey-erp/odyssey-tours/internal/observability"
	"github.com/odyssey-erp/odyssey-tours/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-tours/internal/platform/db"
	"github.com/odyssey-erp/odyssey-tours/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg).With(slog.String("process", "worker"))

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	jobClient, err := jobs.NewClient(redisOpt)
	if err != nil {
		return err
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	// Recheck sweeps confirm payments too, so the worker notifies through the
	// same queue as the server.
	registry := observability.NewMetrics()
	services, err := app.BuildServices(app.ServiceDeps{
		Config:     cfg,
		Pool:       pool,
		Redis:      redisClient,
		Registerer: registry.Registerer(),
		Notifier:   jobClient,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	serveMetrics(ctx, cfg.WorkerMetricsAddr, registry, logger)

	metrics := jobmetrics.NewMetrics(registry.Registerer())
	notifications := &jobs.NotificationHandler{
		Mailer:    jobs.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom),
		Recipient: cfg.NotifyEmail,
		Language:  cfg.NotifyLanguage(),
		Metrics:   metrics,
		Logger:    logger,
	}
	maintenance := &jobs.MaintenanceHandler{
		Rechecker:    services.Payments,
		Keys:         services.Idempotency,
		RecheckAfter: cfg.PaymentRecheckAfter,
		RecheckBatch: cfg.PaymentRecheckBatch,
		KeyRetention: cfg.IdempotencyRetention,
		Metrics:      metrics,
		Logger:       logger,
	}

	recheckTask, err := jobs.NewRecheckPendingTask(jobs.RecheckPendingPayload{})
	if err != nil {
		return err
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpt,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeSendEmail, Handler: notifications.HandleSendEmail},
			{Type: jobs.TaskPaymentConfirmed, Handler: notifications.HandlePaymentConfirmed},
			{Type: jobs.TaskRecheckPending, Handler: maintenance.HandleRecheckPending},
			{Type: jobs.TaskIdempotencyCleanup, Handler: maintenance.HandleIdempotencyCleanup},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/5 * * * *", Task: recheckTask},
			{Spec: "30 3 * * *", Task: jobs.NewIdempotencyCleanupTask()},
		},
	})
	if err != nil {
		return err
	}

	logger.Info("starting worker")
	return worker.Run(ctx)
}

// serveMetrics exposes the worker registry until ctx ends.
func serveMetrics(ctx context.Context, addr string, registry *observability.Metrics, logger *slog.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", registry.Handler())
	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()
}
