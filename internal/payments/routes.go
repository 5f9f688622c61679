package payments

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/odyssey-tours/internal/shared"
)

const (
	// CallbackPath is public and CSRF exempt.
	CallbackPath = "/payments/callback"
	// CallbackRateLimit bounds callback hits per client IP per minute.
	CallbackRateLimit = 30
)

// MountPublicRoutes registers endpoints reached without a session.
func (h *Handler) MountPublicRoutes(r chi.Router) {
	limiter := httprate.Limit(CallbackRateLimit, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(h.throttled),
	)
	r.With(limiter).Get(CallbackPath, h.Callback)
}

// throttled keeps the redirect contract; the transaction stays pending and
// the recheck job settles it later.
func (h *Handler) throttled(w http.ResponseWriter, r *http.Request) {
	h.logger.Warn("payment callback throttled", slog.String("gateway_id", r.URL.Query().Get("id")))
	http.Redirect(w, r, RedirectFor(OutcomePending, nil), http.StatusSeeOther)
}

// MountRoutes registers session-protected payment endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermPaymentInitiate))
		r.Post("/payments/transactions", h.Initiate)
	})
}
