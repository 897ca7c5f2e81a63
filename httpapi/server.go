// Package httpapi implements the gateway's external HTTP surface described
// in spec.md section 6: cached query reads, profile/event shorthands, the
// publish pipeline's synchronous enqueue endpoint, status lookup, and the
// ambient health/metrics endpoints. The mux-plus-handler-methods shape
// mirrors the example pack's own stdlib HTTP server (no router dependency).
package httpapi

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/divinevideo/divine-rest-gateway/cachestore"
	"github.com/divinevideo/divine-rest-gateway/health"
	"github.com/divinevideo/divine-rest-gateway/publish"
	"github.com/divinevideo/divine-rest-gateway/query"
)

// Server holds the wired core components and exposes them over HTTP.
type Server struct {
	coordinator *query.Coordinator
	enqueuer    *publish.Enqueuer
	store       cachestore.Store
	health      *health.Tracker
	startedAt   time.Time
}

// NewServer wires a Coordinator, Enqueuer, and Store into an HTTP server.
func NewServer(coordinator *query.Coordinator, enqueuer *publish.Enqueuer, store cachestore.Store) *Server {
	return &Server{
		coordinator: coordinator,
		enqueuer:    enqueuer,
		store:       store,
		startedAt:   time.Now(),
	}
}

// SetHealth attaches a failure tracker so /api/v1/health and /api/v1/stats
// report live relay health; /health stays a bare liveness check.
func (s *Server) SetHealth(h *health.Tracker) {
	s.health = h
}

// RegisterRoutes installs every route from spec.md section 6 plus the
// ambient /metrics endpoint onto mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.instrument("root", s.handleRoot))
	mux.HandleFunc("GET /health", s.instrument("health", s.handleHealth))
	mux.HandleFunc("GET /api/v1/health", s.instrument("api_health", s.handleAPIHealth))
	mux.HandleFunc("GET /api/v1/stats", s.instrument("api_stats", s.handleAPIStats))
	mux.HandleFunc("GET /query", s.instrument("query", s.handleQuery))
	mux.HandleFunc("GET /profile/{pubkey}", s.instrument("profile", s.handleProfile))
	mux.HandleFunc("GET /event/{id}", s.instrument("event", s.handleEvent))
	mux.HandleFunc("POST /publish", s.instrument("publish", s.handlePublish))
	mux.HandleFunc("GET /publish/status/{event_id}", s.instrument("publish_status", s.handlePublishStatus))
	mux.Handle("GET /metrics", promhttp.Handler())
}

// ListenAndServe starts the HTTP server, mirroring the timeouts the example
// pack's own API server sets.
func (s *Server) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return server.ListenAndServe()
}
