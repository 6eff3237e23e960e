package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ecomerse-microservice/orders-microservice/internal/observability"
	"github.com/ecomerse-microservice/orders-microservice/internal/reliability"
)

// NewRouter wires the order endpoints. limiter and metrics may be nil.
func NewRouter(handler *Handler, limiter *reliability.RateLimiter, metrics *observability.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RateLimit(limiter))

	r.With(Instrument(metrics, "CreateOrder")).Post("/orders", handler.CreateOrder)
	r.With(Instrument(metrics, "ChangeStatus")).Patch("/orders/{id}/status", handler.ChangeStatus)
	r.With(Instrument(metrics, "FindOne")).Get("/orders/{id}", handler.GetOrder)
	r.With(Instrument(metrics, "FindAll")).Get("/orders", handler.ListOrders)
	r.Get("/ws/orders", handler.OrderUpdates)

	return r
}
