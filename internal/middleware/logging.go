package middleware

import (
	"net/http"
	"time"

	"badgehub/internal/monitoring"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// statusRecorder captures the status code written by the handler chain.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// RequestLogger logs one line per request with outcome and latency, and
// records the HTTP Prometheus series. Runs after RequestID so the
// request-scoped logger already carries the correlation ID.
func RequestLogger(base *zap.Logger, metrics *monitoring.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			duration := time.Since(start)
			route := routeTemplate(r)
			if metrics != nil {
				metrics.HTTPRequests.WithLabelValues(route, r.Method, statusClass(rec.status)).Inc()
				metrics.HTTPDuration.WithLabelValues(route).Observe(duration.Seconds())
			}

			logger := LoggerFromContext(r.Context(), base)
			fields := []zap.Field{
				zap.Int("status", rec.status),
				zap.Duration("duration", duration),
			}
			switch {
			case rec.status >= 500:
				logger.Error("Request failed", fields...)
			case rec.status >= 400:
				logger.Warn("Request rejected", fields...)
			default:
				logger.Info("Request complete", fields...)
			}
		})
	}
}

// routeTemplate returns the mux route pattern so metric cardinality stays
// bounded regardless of path parameters.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
