package httpapi

import (
	"net/http"

	"github.com/ecomerse-microservice/orders-microservice/internal/observability"
	"github.com/ecomerse-microservice/orders-microservice/internal/reliability"
)

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// RateLimit applies a shared token-bucket limiter to every request. A nil
// limiter disables it.
func RateLimit(limiter *reliability.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := limiter.Wait(r.Context()); err != nil {
				writeError(w, http.StatusServiceUnavailable, "rate_limited", "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Instrument records a metrics span per request, keyed by the operation name
// the route assigns. Responses at 500 and above count as errors.
func Instrument(metrics *observability.Metrics, operation string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			span := metrics.Start(operation)
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			if rec.status >= http.StatusInternalServerError {
				span.End(http.ErrAbortHandler)
			} else {
				span.End(nil)
			}
		})
	}
}
