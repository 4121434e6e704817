package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "llmbridge"

// Metrics holds the collectors recorded by the invocation layer. All methods
// are safe to call on a nil *Metrics, which records nothing.
type Metrics struct {
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	cacheEvictions  *prometheus.CounterVec
	cacheSize       *prometheus.GaugeVec
	providerCalls   *prometheus.CounterVec
	retries         *prometheus.CounterVec
	fallbacks       *prometheus.CounterVec
	standardized    *prometheus.CounterVec
	conceptsParsed  *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. A nil reg skips
// registration, which is convenient for tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Cache lookups that returned a live entry.",
		}, []string{"cache"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Cache lookups that found nothing or an expired entry.",
		}, []string{"cache"}),
		cacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Entries removed by cleanup, by reason.",
		}, []string{"cache", "reason"}),
		cacheSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Current number of cache entries.",
		}, []string{"cache"}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "calls_total",
			Help:      "Provider round-trips by operation and outcome.",
		}, []string{"operation", "outcome"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "retries_total",
			Help:      "Retries scheduled after a retryable provider failure.",
		}, []string{"operation"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "fallbacks_total",
			Help:      "Fallback values substituted for failed calls.",
		}, []string{"operation", "reason"}),
		standardized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "standardized_total",
			Help:      "Embeddings padded or truncated to the configured dimension.",
		}, []string{"action"}),
		conceptsParsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "concepts",
			Name:      "extractions_total",
			Help:      "Concept extractions by the strategy that produced the result.",
		}, []string{"strategy"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "call_duration_seconds",
			Help:      "Provider round-trip latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.cacheHits,
			m.cacheMisses,
			m.cacheEvictions,
			m.cacheSize,
			m.providerCalls,
			m.retries,
			m.fallbacks,
			m.standardized,
			m.conceptsParsed,
			m.providerLatency,
		)
	}
	return m
}

func (m *Metrics) CacheHit(cache string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(cache).Inc()
}

func (m *Metrics) CacheMiss(cache string) {
	if m == nil {
		return
	}
	m.cacheMisses.WithLabelValues(cache).Inc()
}

func (m *Metrics) CacheEvicted(cache, reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.cacheEvictions.WithLabelValues(cache, reason).Add(float64(n))
}

func (m *Metrics) CacheSize(cache string, n int) {
	if m == nil {
		return
	}
	m.cacheSize.WithLabelValues(cache).Set(float64(n))
}

// ProviderCall records one provider round-trip.
func (m *Metrics) ProviderCall(operation, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.providerCalls.WithLabelValues(operation, outcome).Inc()
	m.providerLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *Metrics) Retry(operation string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(operation).Inc()
}

func (m *Metrics) Fallback(operation, reason string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(operation, reason).Inc()
}

func (m *Metrics) Standardized(action string) {
	if m == nil {
		return
	}
	m.standardized.WithLabelValues(action).Inc()
}

func (m *Metrics) ConceptsParsed(strategy string) {
	if m == nil {
		return
	}
	m.conceptsParsed.WithLabelValues(strategy).Inc()
}
