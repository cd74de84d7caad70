package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector exported by the service.
var Registry = prometheus.NewRegistry()

var (
	runsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrichment_runs_started_total",
		Help: "Enrichment runs started, by kind (batch, single).",
	}, []string{"kind"})

	rerunsQueued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "enrichment_reruns_queued_total",
		Help: "Batch triggers collapsed into a pending rerun.",
	})

	runDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "enrichment_run_duration_seconds",
		Help:    "Enrichment run duration in seconds.",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"kind"})

	recordOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrichment_records_total",
		Help: "Records processed by enrichment, by outcome.",
	}, []string{"outcome"})

	resolverHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrichment_resolver_hits_total",
		Help: "Image URL resolutions by the step that produced them.",
	}, []string{"source"})

	materializeOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrichment_materialize_total",
		Help: "Local image materializations by outcome.",
	}, []string{"outcome"})

	catalogRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_requests_total",
		Help: "Remote catalog requests by operation and result.",
	}, []string{"op", "result"})

	queueMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_messages_total",
		Help: "Queue messages handled by the worker, by result.",
	}, []string{"result"})

	online = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "connectivity_online",
		Help: "1 when the remote catalog is considered reachable.",
	})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		runsStarted,
		rerunsQueued,
		runDuration,
		recordOutcomes,
		resolverHits,
		materializeOutcomes,
		catalogRequests,
		queueMessages,
		online,
	)
	online.Set(1)
}

// IncRunStarted increments the started counter for a run kind.
func IncRunStarted(kind string) {
	runsStarted.WithLabelValues(kind).Inc()
}

// IncRerunQueued counts a trigger that arrived while a batch was in flight.
func IncRerunQueued() {
	rerunsQueued.Inc()
}

// ObserveRunDuration records a run duration in seconds.
func ObserveRunDuration(kind string, seconds float64) {
	if seconds < 0 {
		seconds = 0
	}
	runDuration.WithLabelValues(kind).Observe(seconds)
}

// AddRecordOutcome adds n records to the given outcome bucket.
func AddRecordOutcome(outcome string, n int) {
	if n <= 0 {
		return
	}
	recordOutcomes.WithLabelValues(outcome).Add(float64(n))
}

// IncResolverHit counts a resolution by source step.
func IncResolverHit(source string) {
	resolverHits.WithLabelValues(source).Inc()
}

// IncMaterialize counts a materialization outcome.
func IncMaterialize(outcome string) {
	materializeOutcomes.WithLabelValues(outcome).Inc()
}

// IncCatalogRequest counts a catalog call.
func IncCatalogRequest(op, result string) {
	catalogRequests.WithLabelValues(op, result).Inc()
}

// IncQueueMessage counts a worker queue message by result
// (received, dispatched, failed, dropped).
func IncQueueMessage(result string) {
	queueMessages.WithLabelValues(result).Inc()
}

// SetOnline records the current connectivity state.
func SetOnline(v bool) {
	if v {
		online.Set(1)
		return
	}
	online.Set(0)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))
}
