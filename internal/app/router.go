package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-tours/internal/auth"
	"github.com/odyssey-erp/odyssey-tours/internal/invoicing"
	"github.com/odyssey-erp/odyssey-tours/internal/observability"
	"github.com/odyssey-erp/odyssey-tours/internal/payments"
	"github.com/odyssey-erp/odyssey-tours/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-tours/internal/shared"
	"github.com/odyssey-erp/odyssey-tours/jobs"
)

const (
	healthPath  = "/healthz"
	metricsPath = "/metrics"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	SessionManager   *shared.SessionManager
	CSRFManager      *shared.CSRFManager
	AuthHandler      *auth.Handler
	InvoicingHandler *invoicing.Handler
	PaymentsHandler  *payments.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
	Database         Pinger
}

// NewRouter constructs the chi.Router with Odyssey defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
		StatelessPaths: []string{healthPath, metricsPath, payments.CallbackPath},
	}) {
		r.Use(mw)
	}

	r.Get(healthPath, healthHandler(params.Database, params.Logger))
	if params.Metrics != nil {
		r.Method(http.MethodGet, metricsPath, params.Metrics.Handler())
	}

	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}
	if params.InvoicingHandler != nil {
		params.InvoicingHandler.MountRoutes(r)
	}
	if params.PaymentsHandler != nil {
		params.PaymentsHandler.MountPublicRoutes(r)
		params.PaymentsHandler.MountRoutes(r)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	return r
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
}

func healthHandler(database Pinger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if database == nil {
			httpx.JSON(w, http.StatusOK, healthResponse{Status: "ok"})
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := database.Ping(ctx); err != nil {
			logger.Warn("health check: database unreachable", slog.Any("error", err))
			httpx.JSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Database: "unreachable"})
			return
		}
		httpx.JSON(w, http.StatusOK, healthResponse{Status: "ok", Database: "ok"})
	}
}
