// Package metrics exposes the gateway's Prometheus counters, gauges, and
// histograms, registered eagerly the way the example pack's telemetry
// modules do: package-level collectors plus an init() that registers them
// unconditionally, so metrics always exist even when nothing is scraping
// /metrics yet.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	CacheLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_cache_lookups_total",
		Help: "Total cache lookups by outcome (hit, miss).",
	}, []string{"outcome"})

	ExecutorTerminationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_executor_terminations_total",
		Help: "Total Relay Session Executor terminations by reason.",
	}, []string{"reason"})

	ExecutorDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gateway_executor_duration_seconds",
		Help:    "Wall-clock duration of a single Executor query session.",
		Buckets: []float64{.01, .05, .1, .3, .5, 1, 2, 3, 5},
	})

	PublishAttemptsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_publish_attempts_total",
		Help: "Total publish attempts made by the Consumer, across all retries.",
	})

	PublishOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_publish_outcomes_total",
		Help: "Total publish jobs resolved by outcome (published, failed).",
	}, []string{"outcome"})

	PublishQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_publish_queue_depth",
		Help: "Approximate number of jobs waiting in the publish queue.",
	})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_http_requests_total",
		Help: "Total HTTP requests handled, by route and status class.",
	}, []string{"route", "status_class"})
)

func init() {
	prometheus.MustRegister(
		CacheLookupsTotal,
		ExecutorTerminationsTotal,
		ExecutorDuration,
		PublishAttemptsTotal,
		PublishOutcomesTotal,
		PublishQueueDepth,
		HTTPRequestsTotal,
	)
}

// TerminationReason classifies why an Executor session ended, for the
// gateway_executor_terminations_total counter.
type TerminationReason string

const (
	ReasonEose         TerminationReason = "eose"
	ReasonLimitReached TerminationReason = "limit_reached"
	ReasonIdleTimeout  TerminationReason = "idle_timeout"
	ReasonEmptyTimeout TerminationReason = "empty_timeout"
	ReasonHardTimeout  TerminationReason = "hard_timeout"
)

// ObserveExecutorSession records one Executor.Query invocation's outcome.
func ObserveExecutorSession(reason TerminationReason, duration time.Duration) {
	ExecutorTerminationsTotal.WithLabelValues(string(reason)).Inc()
	ExecutorDuration.Observe(duration.Seconds())
}

// ObserveCacheLookup records a cache hit or miss.
func ObserveCacheLookup(hit bool) {
	if hit {
		CacheLookupsTotal.WithLabelValues("hit").Inc()
		return
	}
	CacheLookupsTotal.WithLabelValues("miss").Inc()
}

// ObservePublishOutcome records a terminal publish outcome (published or
// failed/dead-lettered).
func ObservePublishOutcome(published bool) {
	if published {
		PublishOutcomesTotal.WithLabelValues("published").Inc()
		return
	}
	PublishOutcomesTotal.WithLabelValues("failed").Inc()
}
