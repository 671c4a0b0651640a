/*
server.go - HTTP router for the billing core's thin reference surface.

No auth/multi-tenant mounting, no static asset serving — per spec §1
those are explicitly out of scope; this wiring only proves the six
operations of §6.1 are callable over HTTP.
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter wires the six billing operations (spec §6.1) onto a chi
// router with the teacher's standard middleware stack.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
	}))

	r.Route("/clients/{clientId}", func(r chi.Router) {
		r.Post("/readings/{periodId}", h.SubmitReadings)
		r.Post("/bills/{periodId}", h.GenerateBill)
		r.Post("/payments", h.RecordPayment)
		r.Delete("/payments/{transactionId}", h.DeletePayment)
		r.Get("/aggregated", h.GetAggregatedData)
		r.Get("/units/{unitId}/credit", h.GetCreditBalance)
	})

	return r
}
