package app

import (
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-tours/internal/auth"
	"github.com/odyssey-erp/odyssey-tours/internal/invoicing"
	"github.com/odyssey-erp/odyssey-tours/internal/numbering"
	"github.com/odyssey-erp/odyssey-tours/internal/payments"
	"github.com/odyssey-erp/odyssey-tours/internal/payments/gateway"
	"github.com/odyssey-erp/odyssey-tours/internal/rbac"
	"github.com/odyssey-erp/odyssey-tours/internal/shared"
)

// ServiceDeps are the process-wide resources the domain services share.
type ServiceDeps struct {
	Config     *Config
	Pool       *pgxpool.Pool
	Redis      redis.Cmdable
	Registerer prometheus.Registerer
	Notifier   payments.Notifier
	Logger     *slog.Logger
}

// Services is the wired domain layer used by both the server and the worker.
type Services struct {
	Auth        *auth.Service
	RBAC        *rbac.Service
	Invoicing   *invoicing.Service
	Payments    *payments.Service
	Idempotency *shared.IdempotencyStore
}

// BuildServices wires repositories, the number generator and the payment
// reconciler from configuration.
func BuildServices(deps ServiceDeps) (*Services, error) {
	if deps.Config == nil || deps.Pool == nil {
		return nil, errors.New("app: config and pool are required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	scheme, err := cfg.NumberingScheme()
	if err != nil {
		return nil, err
	}

	invoiceRepo := invoicing.NewRepository(deps.Pool)
	numbers := numbering.NewGenerator[invoicing.Repository](invoiceRepo, numbering.Config{
		Scheme:      scheme,
		MaxAttempts: cfg.NumberMaxAttempts,
		Logger:      logger.With(slog.String("component", "numbering")),
		Metrics:     numbering.NewMetrics(deps.Registerer),
	})
	auditLogger := shared.NewAuditLogger(deps.Pool)
	invoiceService := invoicing.NewService(invoiceRepo, numbers, auditLogger, logger.With(slog.String("component", "invoicing")))

	keys := shared.NewIdempotencyStore(deps.Pool)
	paymentRepo := payments.NewRepository(deps.Pool)
	reconciler := payments.NewReconciler(
		paymentRepo,
		gateway.NewClient(cfg.PaymentGatewayURL, cfg.PaymentGatewayToken, cfg.PaymentVerifyTimeout),
		invoicing.PaymentSettler{Service: invoiceService},
		deps.Notifier,
		logger.With(slog.String("component", "reconciler")),
		payments.NewMetrics(deps.Registerer),
		payments.ReconcilerConfig{
			VerifyTimeout: cfg.PaymentVerifyTimeout,
			MockEnabled:   cfg.PaymentMockEnabled,
		},
	)
	if cfg.PaymentMockEnabled {
		logger.Warn("payment mock flag honoured; callbacks with mock=1 skip verification")
	}

	return &Services{
		Auth:        auth.NewService(auth.NewRepository(deps.Pool)),
		RBAC:        rbac.NewService(deps.Pool, deps.Redis, cfg.RBACCacheTTL, logger.With(slog.String("component", "rbac"))),
		Invoicing:   invoiceService,
		Payments:    payments.NewService(paymentRepo, reconciler, keys, logger.With(slog.String("component", "payments"))),
		Idempotency: keys,
	}, nil
}
