package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the price history routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/history", func(r chi.Router) {
		r.Get("/", h.HandleListSymbols)
		r.Post("/{symbol}", func(w http.ResponseWriter, r *http.Request) {
			h.HandleImport(w, r, chi.URLParam(r, "symbol"))
		})
	})
}
