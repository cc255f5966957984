package interceptors

import (
	"net/http"
	"strconv"
	"time"

	"dispatch/pkg/metrics"
)

// MetricsMiddleware записывает метрики HTTP запросов
func MetricsMiddleware() func(http.Handler) http.Handler {
	m := metrics.Get()
	tracker := metrics.NewRequestTracker(m.HTTPRequestsInFlight)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := r.Method + " " + r.URL.Path
			tracker.Start(route)
			defer tracker.End(route)

			start := time.Now()

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			duration := time.Since(start)
			m.RecordHTTPRequest(r.Method, r.URL.Path, strconv.Itoa(rec.status), duration)
		})
	}
}
