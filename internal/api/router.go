// Package api exposes token workflows over a small REST facade.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter wires the v1 routes onto a chi router.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(logger)
	r.Use(recoverer)

	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/keys", h.GenerateKey)
		r.Post("/sign", h.Sign)
		r.Post("/verify", h.Verify)
		r.Post("/attributes", h.Attribute)
		r.Post("/certs/selfsign", h.SelfSign)
		r.Post("/receipts", h.Receipt)
	})

	return r
}
