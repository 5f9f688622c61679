package payments

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/odyssey-erp/odyssey-tours/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-tours/internal/rbac"
)

// Handler serves payment endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// Callback is reached by browser redirect from the payment provider, so it
// always answers with 303 See Other.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cb := Callback{
		GatewayID: strings.TrimSpace(q.Get("id")),
		Mock:      parseFlag(q.Get("mock")),
	}
	res := h.service.Reconcile(r.Context(), cb)
	h.logger.Info("payment callback",
		slog.String("gateway_id", cb.GatewayID),
		slog.String("outcome", string(res.Outcome)),
	)
	http.Redirect(w, r, res.RedirectURL, http.StatusSeeOther)
}

// Initiate records a new pending payment attempt.
func (h *Handler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req InitiateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.Validate(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	tx, err := h.service.Initiate(r.Context(), req, r.Header.Get("Idempotency-Key"))
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicateGateway):
			httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
		case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrMissingDocument):
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		default:
			h.logger.Error("initiate payment", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusCreated, tx)
}

func parseFlag(raw string) bool {
	ok, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && ok
}
