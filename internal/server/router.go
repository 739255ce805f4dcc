// Package server wires the aggregation pipeline behind a chi router.
package server

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(h *Handler, logger zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(Recovery(logger))
	r.Use(RequestID)
	r.Use(Logging(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	// One inbound request fans out into dozens of upstream calls; keep the
	// inbound rate well below what the platform's limits can absorb.
	r.Use(httprate.LimitByIP(30, 1*time.Minute))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health)
		// All methods: the consumer expects a decodable 200 body even for
		// a wrong method, so the guard lives inside the handler.
		r.HandleFunc("/assets", h.Assets)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
