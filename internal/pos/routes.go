package pos

import (
	"github.com/go-chi/chi/v5"

	"github.com/carepoint-hms/carepoint/internal/rbac"
)

// MountRoutes registers checkout routes. Later payments on a receipt go
// through the ledger under /pos-sales.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/pos", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.Require(rbac.ResourcePOS, rbac.LevelView))
			r.Get("/sales", h.List)
			r.Get("/sales/{id}", h.Show)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.Require(rbac.ResourcePOS, rbac.LevelEdit))
			r.Post("/checkout", h.Checkout)
		})
	})
}
