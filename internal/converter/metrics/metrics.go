package metrics

import (
	"github.com/langowen/converter/internal/converter/resilience"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the converter collectors.
type Metrics struct {
	CacheLookupsTotal   *prometheus.CounterVec
	UpstreamCallsTotal  *prometheus.CounterVec
	UpstreamRetries     *prometheus.CounterVec
	BreakerState        *prometheus.GaugeVec
	HTTPRequestDuration *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CacheLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "converter_cache_lookups_total",
				Help: "Cache lookups by operation and result (hit, miss, error)",
			},
			[]string{"operation", "result"},
		),
		UpstreamCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "converter_upstream_calls_total",
				Help: "Upstream provider calls by outcome",
			},
			[]string{"target", "outcome"},
		),
		UpstreamRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "converter_upstream_retries_total",
				Help: "Retries of upstream provider calls",
			},
			[]string{"target"},
		),
		BreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "converter_circuit_breaker_state",
				Help: "Circuit breaker state: 0 closed, 1 open, 2 half-open",
			},
			[]string{"target"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "converter_http_request_duration_seconds",
				Help:    "HTTP request duration by route and status",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "status"},
		),
	}
}

func (m *Metrics) CacheLookup(operation, result string) {
	m.CacheLookupsTotal.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) ObserveCall(target string, outcome resilience.Outcome) {
	m.UpstreamCallsTotal.WithLabelValues(target, outcome.String()).Inc()
}

func (m *Metrics) ObserveRetry(target string) {
	m.UpstreamRetries.WithLabelValues(target).Inc()
}

func (m *Metrics) ObserveState(target string, state resilience.State) {
	m.BreakerState.WithLabelValues(target).Set(float64(state))
}
