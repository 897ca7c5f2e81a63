package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/divinevideo/divine-rest-gateway/filterid"
	"github.com/divinevideo/divine-rest-gateway/gwerrors"
	"github.com/divinevideo/divine-rest-gateway/health"
	"github.com/divinevideo/divine-rest-gateway/nip98"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "divine-rest-gateway")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "ok")
}

// handleAPIHealth is the richer JSON health view, additive to the bare
// liveness check at /health: worst-of query/publish failure state with an
// HTTP status that degrades to 503 once the gateway has gone red.
func (s *Server) handleAPIHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, health.Snapshot{Query: health.Green, Publish: health.Green, Overall: health.Green})
		return
	}
	snap := s.health.Snapshot()
	status := http.StatusOK
	if snap.Overall == health.Red {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, snap)
}

// handleAPIStats reports the gateway's own runtime counters plus health
// state, additive to the Prometheus surface at /metrics.
func (s *Server) handleAPIStats(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := struct {
		UptimeSeconds int64            `json:"uptime_seconds"`
		AllocBytes    uint64           `json:"alloc_bytes"`
		NumGoroutine  int              `json:"num_goroutines"`
		Health        *health.Snapshot `json:"health,omitempty"`
	}{
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		AllocBytes:    mem.Alloc,
		NumGoroutine:  runtime.NumGoroutine(),
	}
	if s.health != nil {
		snap := s.health.Snapshot()
		resp.Health = &snap
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("filter")
	if token == "" {
		writeError(w, http.StatusBadRequest, gwerrors.ErrInvalidFilter.Error(), "missing filter parameter")
		return
	}
	filter, err := filterid.Decode(token)
	if err != nil {
		writeError(w, http.StatusBadRequest, gwerrors.ErrInvalidFilter.Error(), err.Error())
		return
	}
	s.serveFilter(w, r, filter)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	pubkey := r.PathValue("pubkey")
	if pubkey == "" {
		writeError(w, http.StatusBadRequest, gwerrors.ErrInvalidFilter.Error(), "missing pubkey")
		return
	}
	limit := 1
	filter := &filterid.Filter{Authors: []string{pubkey}, Kinds: []int{0}, Limit: &limit}
	s.serveFilter(w, r, filter)
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, gwerrors.ErrInvalidFilter.Error(), "missing event id")
		return
	}
	limit := 1
	filter := &filterid.Filter{IDs: []string{id}, Limit: &limit}
	s.serveFilter(w, r, filter)
}

// serveFilter drives a decoded/synthesized Filter through the Coordinator
// and renders the response envelope, shared by /query, /profile/{pubkey},
// and /event/{id}.
func (s *Server) serveFilter(w http.ResponseWriter, r *http.Request, filter *filterid.Filter) {
	env, err := s.coordinator.Query(r.Context(), filter)
	if err != nil {
		switch {
		case errors.Is(err, gwerrors.ErrRelayUnavailable):
			writeError(w, http.StatusBadGateway, gwerrors.ErrRelayUnavailable.Error(), err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "internal", err.Error())
		}
		return
	}

	// Per spec.md section 7: a hard-timeout termination with zero events and
	// no authoritative completion is reported as relay_timeout, not as a
	// (misleadingly) empty success.
	if !env.Cached && !env.Complete && len(env.Events) == 0 {
		writeError(w, http.StatusGatewayTimeout, gwerrors.ErrRelayTimeout.Error(), "")
		return
	}

	ttlSeconds := int(filterid.TTL(filter).Seconds())
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d, s-maxage=%d", ttlSeconds, ttlSeconds))

	events := env.Events
	if events == nil {
		events = []json.RawMessage{}
	}
	resp := struct {
		Events          []json.RawMessage `json:"events"`
		Eose            bool              `json:"eose"`
		Complete        bool              `json:"complete"`
		Cached          bool              `json:"cached"`
		CacheAgeSeconds *int64            `json:"cache_age_seconds,omitempty"`
	}{Events: events, Eose: env.Eose, Complete: env.Complete, Cached: env.Cached}
	if env.Cached {
		age := env.CacheAgeSeconds
		resp.CacheAgeSeconds = &age
	}
	writeJSON(w, http.StatusOK, resp)
}

type publishRequest struct {
	Event nostr.Event `json:"event"`
}

type publishResponse struct {
	Status  string `json:"status"`
	EventID string `json:"event_id"`
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, gwerrors.ErrInvalidRequest.Error(), err.Error())
		return
	}

	var req publishRequest
	if err := json.Unmarshal(body, &req); err != nil || req.Event.ID == "" {
		writeError(w, http.StatusBadRequest, gwerrors.ErrInvalidRequest.Error(), "malformed publish body")
		return
	}

	pubkey, err := nip98.Validate(r.Header.Get("Authorization"), r.Method, requestURL(r))
	if err != nil {
		writeError(w, http.StatusUnauthorized, gwerrors.ErrAuthFailed.Error(), err.Error())
		return
	}
	if pubkey != req.Event.PubKey {
		writeError(w, http.StatusUnauthorized, gwerrors.ErrAuthFailed.Error(), "auth pubkey does not match event pubkey")
		return
	}

	eventID, err := s.enqueuer.Enqueue(r.Context(), &req.Event)
	if err != nil {
		writeError(w, http.StatusInternalServerError, gwerrors.ErrStoreUnavailable.Error(), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, publishResponse{Status: "queued", EventID: eventID})
}

func (s *Server) handlePublishStatus(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("event_id")
	status, err := s.store.GetStatus(r.Context(), eventID)
	if err != nil {
		// Per spec.md section 7, a store-unavailable read degrades to the
		// same outcome as a miss.
		writeError(w, http.StatusNotFound, gwerrors.ErrNotFound.Error(), "")
		return
	}
	if status == nil {
		writeError(w, http.StatusNotFound, gwerrors.ErrNotFound.Error(), "")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// requestURL reconstructs the absolute URL the client would have signed
// into its NIP-98 event, honoring a reverse proxy's forwarded-proto header
// since the gateway itself is expected to sit behind TLS termination.
func requestURL(r *http.Request) string {
	scheme := r.URL.Scheme
	if scheme == "" {
		scheme = r.Header.Get("X-Forwarded-Proto")
	}
	if scheme == "" {
		if r.TLS != nil {
			scheme = "https"
		} else {
			scheme = "http"
		}
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
