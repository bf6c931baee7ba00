package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"

	"github.com/switchmart/assistant-engine/internal/domain"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration  *prometheus.HistogramVec
	externalErrors   *prometheus.CounterVec
	cacheHits        *prometheus.CounterVec
	cacheMisses      *prometheus.CounterVec
	retrievalScore   *prometheus.HistogramVec
	turnsTotal       *prometheus.CounterVec
	negotiationsEnds *prometheus.CounterVec
	requestsTotal    *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "engine_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		retrievalScore: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "engine_retrieval_best_score",
				Help:    "Best similarity score per retrieval, by corpus.",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			},
			[]string{"corpus"},
		),
		turnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_chat_turns_total",
				Help: "Total chat turns processed, by confidence.",
			},
			[]string{"confidence"},
		),
		negotiationsEnds: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_negotiations_ended_total",
				Help: "Negotiations reaching a terminal status.",
			},
			[]string{"status"},
		),
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_requests_total",
				Help: "Total requests processed.",
			},
			[]string{"status"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// RecordRetrievalScore records the best similarity score of a
// retrieval pass for the given corpus.
func (m *Metrics) RecordRetrievalScore(corpus string, score float64) {
	m.retrievalScore.WithLabelValues(corpus).Observe(score)
}

// IncrTurn counts a processed chat turn. lowConfidence marks turns
// whose retrieved context fell below the confidence floor.
func (m *Metrics) IncrTurn(lowConfidence bool) {
	label := "ok"
	if lowConfidence {
		label = "low"
	}
	m.turnsTotal.WithLabelValues(label).Inc()
}

// IncrNegotiationEnd counts a negotiation reaching a terminal status.
func (m *Metrics) IncrNegotiationEnd(status domain.NegotiationStatus) {
	m.negotiationsEnds.WithLabelValues(string(status)).Inc()
}

// IncrRequest increments the request counter with a status label.
func (m *Metrics) IncrRequest(status string) {
	m.requestsTotal.WithLabelValues(status).Inc()
}

// GetEngineSnapshot returns a snapshot of engine metrics suitable for
// the GET /v1/metrics/engine endpoint.
func (m *Metrics) GetEngineSnapshot() *domain.EngineMetrics {
	// Prometheus counters expose cumulative values.
	okTurns := getCounterValue(m.turnsTotal, "ok")
	lowTurns := getCounterValue(m.turnsTotal, "low")
	totalTurns := okTurns + lowTurns

	totalRequests := getCounterValue(m.requestsTotal, "success") +
		getCounterValue(m.requestsTotal, "error")
	errorCount := getCounterValue(m.requestsTotal, "error")

	cacheHits := getCounterValue(m.cacheHits, "faq") + getCounterValue(m.cacheHits, "games")
	cacheMisses := getCounterValue(m.cacheMisses, "faq") + getCounterValue(m.cacheMisses, "games")

	negSuccess := getCounterValue(m.negotiationsEnds, string(domain.NegotiationSuccess))
	negTotal := negSuccess +
		getCounterValue(m.negotiationsEnds, string(domain.NegotiationFailed)) +
		getCounterValue(m.negotiationsEnds, string(domain.NegotiationAbandoned))

	lowConfidenceRate := float64(0)
	errorRate := float64(0)
	cacheHitRate := float64(0)

	if totalTurns > 0 {
		lowConfidenceRate = lowTurns / totalTurns
	}
	if totalRequests > 0 {
		errorRate = errorCount / totalRequests
	}
	if cacheHits+cacheMisses > 0 {
		cacheHitRate = cacheHits / (cacheHits + cacheMisses)
	}

	return &domain.EngineMetrics{
		TotalTurns:         int64(totalTurns),
		LowConfidenceRate:  lowConfidenceRate,
		CacheHitRate:       cacheHitRate,
		ErrorRate:          errorRate,
		NegotiationsTotal:  int64(negTotal),
		NegotiationSuccess: int64(negSuccess),
		Period:             "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
