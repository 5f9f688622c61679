package invoicing

import (
	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-tours/internal/shared"
)

// MountRoutes registers invoice and quotation endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	h.mountKind(r, KindInvoice, shared.PermInvoiceView, shared.PermInvoiceCreate, shared.PermInvoiceStatus)
	h.mountKind(r, KindQuotation, shared.PermQuotationView, shared.PermQuotationCreate, shared.PermQuotationStatus)
}

func (h *Handler) mountKind(r chi.Router, kind Kind, view, create, status string) {
	base := "/" + kind.Collection()
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(view, create))
		r.Get(base+"/numbers/next", h.nextNumber(kind))
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(view))
		r.Get(base+"/{id}", h.show(kind))
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(create))
		r.Post(base, h.create(kind))
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(status))
		r.Post(base+"/{id}/status", h.transition(kind))
	})
}
