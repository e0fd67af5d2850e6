package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all portfolio routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/portfolio", func(r chi.Router) {
		r.Get("/", h.HandleGetPortfolio)
		r.Get("/statistics", h.HandleGetStatistics)
		r.Put("/weights", h.HandleSetWeights)
		r.Put("/symbols", h.HandleSetSymbols)

		r.Route("/min-variance", func(r chi.Router) {
			r.Post("/", h.HandleMinVariance)
			r.Get("/chart", h.HandleMinVarianceChart)
		})
	})
}
