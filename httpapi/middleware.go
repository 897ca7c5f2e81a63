package httpapi

import (
	"net/http"
	"time"

	"github.com/divinevideo/divine-rest-gateway/logging"
	"github.com/divinevideo/divine-rest-gateway/metrics"
)

const module = "httpapi"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// instrument wraps a handler with the CORS header every response in spec.md
// section 6 requires, panic recovery, and a request-counter/latency log,
// the same recover-log-count shape the example pack applies around its own
// hot-path handlers.
func (s *Server) instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		started := time.Now()

		defer func() {
			if rerr := recover(); rerr != nil {
				logging.Error("httpapi: panic in %s handler: %v", route, rerr)
				if rec.status == http.StatusOK {
					writeError(rec, http.StatusInternalServerError, "internal", "")
				}
			}
			metrics.HTTPRequestsTotal.WithLabelValues(route, statusClass(rec.status)).Inc()
			logging.DebugMethod(module, route, "%s %s -> %d in %v", r.Method, r.URL.Path, rec.status, time.Since(started))
		}()

		h(rec, r)
	}
}
