package middleware

import (
	"net/http"
	"time"

	"isawan/internal/metrics"
)

// Metrics records request counts and latency. route maps a request to a
// bounded label so path parameters do not explode the series count.
func Metrics(m *metrics.Metrics, route func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := wrap(w)
			next.ServeHTTP(rw, r)

			m.ObserveHTTP(r.Method, route(r), rw.statusCode, time.Since(start))
		})
	}
}
