package invoicing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-tours/internal/numbering"
	"github.com/odyssey-erp/odyssey-tours/internal/payments"
	"github.com/odyssey-erp/odyssey-tours/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-tours/internal/rbac"
	"github.com/odyssey-erp/odyssey-tours/internal/shared"
)

// TransactionLister returns the payment attempts recorded against a document.
type TransactionLister interface {
	ListByDocument(ctx context.Context, ref payments.DocumentRef) ([]payments.Transaction, error)
}

// Handler serves the invoice and quotation endpoints.
type Handler struct {
	logger       *slog.Logger
	service      *Service
	transactions TransactionLister
	rbac         rbac.Middleware
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service, transactions TransactionLister, rbac rbac.Middleware) *Handler {
	return &Handler{
		logger:       logger,
		service:      service,
		transactions: transactions,
		rbac:         rbac,
	}
}

// DocumentView is a document together with its payment attempts.
type DocumentView struct {
	*Document
	Transactions []payments.Transaction `json:"transactions"`
}

func (h *Handler) create(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := shared.ActorFromContext(r.Context())
		if !ok {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		var req CreateRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
		if err := httpx.Validate(req); err != nil {
			httpx.RespondError(w, err)
			return
		}
		doc, err := h.service.Create(r.Context(), kind, req, actor)
		if err != nil {
			h.fail(w, r, "create document", err)
			return
		}
		httpx.JSON(w, http.StatusCreated, doc)
	}
}

func (h *Handler) nextNumber(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		number, err := h.service.PreviewNumber(r.Context(), kind)
		if err != nil {
			h.fail(w, r, "preview number", err)
			return
		}
		httpx.JSON(w, http.StatusOK, NumberPreview{Kind: kind, Number: number})
	}
}

func (h *Handler) show(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}

		var view DocumentView
		g, ctx := errgroup.WithContext(r.Context())
		g.Go(func() error {
			doc, err := h.service.Get(ctx, kind, id)
			view.Document = doc
			return err
		})
		if h.transactions != nil {
			g.Go(func() error {
				txs, err := h.transactions.ListByDocument(ctx, payments.DocumentRef{Kind: string(kind), ID: id})
				view.Transactions = txs
				return err
			})
		}
		if err := g.Wait(); err != nil {
			h.fail(w, r, "show document", err)
			return
		}
		if view.Transactions == nil {
			view.Transactions = []payments.Transaction{}
		}
		httpx.JSON(w, http.StatusOK, view)
	}
}

func (h *Handler) transition(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := shared.ActorFromContext(r.Context())
		if !ok {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		id, err := parseID(r)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		var req TransitionRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
		if err := httpx.Validate(req); err != nil {
			httpx.RespondError(w, err)
			return
		}
		doc, err := h.service.Transition(r.Context(), kind, id, req.Status, actor, req.Reason)
		if err != nil {
			h.fail(w, r, "transition document", err)
			return
		}
		httpx.JSON(w, http.StatusOK, doc)
	}
}

// fail classifies domain errors. Anything unclassified is logged and answered
// with a bare 500.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ErrInvalidStatus),
		errors.Is(err, ErrIllegalTransition),
		errors.Is(err, ErrTerminalState):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Status Change Rejected", err.Error())
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrUnknownKind):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, numbering.ErrNumberGenerationFailed):
		h.logger.Error(op, slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, httpx.ErrUnavailable)
	default:
		h.logger.Error(op, slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func parseID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", httpx.ErrValidation, raw)
	}
	return id, nil
}
