// Package query implements the cache-lookup/Executor/cache-fill coordinator
// described in spec.md section 4.E.
package query

import (
	"context"
	"encoding/json"
	"time"

	"github.com/divinevideo/divine-rest-gateway/cachestore"
	"github.com/divinevideo/divine-rest-gateway/filterid"
	"github.com/divinevideo/divine-rest-gateway/health"
	"github.com/divinevideo/divine-rest-gateway/logging"
	"github.com/divinevideo/divine-rest-gateway/metrics"
	"github.com/divinevideo/divine-rest-gateway/relayexec"
)

const module = "query"

// Executor is the subset of relayexec.Executor the Coordinator depends on,
// declared locally so tests can supply a fake without touching a real
// websocket connection.
type Executor interface {
	Query(ctx context.Context, filter *filterid.Filter) (relayexec.QueryResult, error)
}

// Envelope is the response shape spec.md section 4.E's step 5 describes,
// independent of how httpapi renders it as JSON.
type Envelope struct {
	Events          []json.RawMessage
	Eose            bool
	Complete        bool
	Cached          bool
	CacheAgeSeconds int64
}

// Coordinator wires a Store and an Executor together.
type Coordinator struct {
	store  cachestore.Store
	exec   Executor
	health *health.Tracker
}

// New returns a Coordinator backed by the given cache store and executor.
func New(store cachestore.Store, exec Executor) *Coordinator {
	return &Coordinator{store: store, exec: exec}
}

// SetHealth attaches a failure tracker so relay query outcomes feed the
// gateway's health endpoint. Optional: a Coordinator with no tracker attached
// behaves exactly as before.
func (c *Coordinator) SetHealth(h *health.Tracker) {
	c.health = h
}

// Query implements the five steps of spec.md section 4.E: identity, cache
// lookup, Executor invocation on miss, write-through, envelope assembly.
func (c *Coordinator) Query(ctx context.Context, filter *filterid.Filter) (Envelope, error) {
	identity, err := filterid.Identity(filter)
	if err != nil {
		return Envelope{}, err
	}

	cached, age, err := c.store.GetQuery(ctx, identity)
	if err != nil {
		// A store-unavailable read is treated as a miss, per spec.md section
		// 4.B; the request still succeeds by falling through to the relay.
		logging.DebugMethod(module, "Query", "cache read failed for %s, treating as miss: %v", identity, err)
		cached = nil
	}
	metrics.ObserveCacheLookup(cached != nil)
	if cached != nil {
		return Envelope{
			Events:          cached.Events,
			Eose:            cached.Eose,
			Complete:        cached.Eose,
			Cached:          true,
			CacheAgeSeconds: age,
		}, nil
	}

	result, err := c.exec.Query(ctx, filter)
	if c.health != nil {
		c.health.RecordQuery(err == nil)
	}
	if err != nil {
		return Envelope{}, err
	}
	complete := result.Eose || result.LimitReached

	record := &cachestore.CachedQuery{Events: result.Events, Eose: result.Eose, Timestamp: time.Now().Unix()}
	if err := c.store.PutQuery(ctx, identity, record, filterid.TTL(filter)); err != nil {
		// Write failure is logged and non-fatal; the caller already has a
		// usable answer from the relay.
		logging.Warn("query: cache write failed for %s: %v", identity, err)
	}

	return Envelope{Events: result.Events, Eose: result.Eose, Complete: complete, Cached: false}, nil
}
