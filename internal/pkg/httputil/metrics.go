package httputil

import (
	"net/http"
	"strconv"
	"time"

	"github.com/bissquit/notify-engine/internal/pkg/metrics"
	"github.com/go-chi/chi/v5/middleware"
)

// MetricsMiddleware observes request duration by method, route pattern and
// status. It must run first so the whole chain is timed.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		// route patterns, not raw paths, keep label cardinality bounded
		metrics.HTTPRequestDuration.WithLabelValues(
			r.Method,
			routePattern(r),
			strconv.Itoa(status),
		).Observe(time.Since(start).Seconds())
	})
}
