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
	"github.com/odyssey-erp/odyssey-tours/internal/auth"
	"github.com/odyssey-erp/odyssey-tours/internal/invoicing"
	"github.com/odyssey-erp/odyssey-tours/internal/observability"
	"github.com/odyssey-erp/odyssey-tours/internal/payments"
	"github.com/odyssey-erp/odyssey-tours/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-tours/internal/platform/db"
	"github.com/odyssey-erp/odyssey-tours/internal/rbac"
	"github.com/odyssey-erp/odyssey-tours/internal/shared"
	"github.com/odyssey-erp/odyssey-tours/jobs"
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

	if err := run(ctx, stop, cfg, logger); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return err
	}
	// Closed last, after the HTTP server has drained.
	defer pool.Close()

	if cfg.DBAutoMigrate {
		applied, err := db.Migrate(ctx, pool)
		if err != nil {
			return err
		}
		if len(applied) > 0 {
			logger.Info("schema migrated", slog.Any("versions", applied))
		}
	}

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
	inspector := asynq.NewInspector(redisOpt)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	services, err := app.BuildServices(app.ServiceDeps{
		Config:     cfg,
		Pool:       pool,
		Redis:      redisClient,
		Registerer: metrics.Registerer(),
		Notifier:   jobClient,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	if err := services.RBAC.EnsurePermissions(ctx, shared.BillingScopes()); err != nil {
		logger.Warn("seed billing permissions", slog.Any("error", err))
	}

	sessionManager := shared.NewSessionManager(redisClient, "odyssey_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	rbacMiddleware := rbac.Middleware{Service: services.RBAC, Logger: logger}

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		AuthHandler:      auth.NewHandler(logger, services.Auth, sessionManager, csrfManager),
		InvoicingHandler: invoicing.NewHandler(logger, services.Invoicing, services.Payments, rbacMiddleware),
		PaymentsHandler:  payments.NewHandler(logger, services.Payments, rbacMiddleware),
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
		Database:         pool,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	return nil
}
