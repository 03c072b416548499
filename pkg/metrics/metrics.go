package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks fan-out and identity resolution activity. A nil *Metrics
// is valid and records nothing, so components can run without a registry.
type Metrics struct {
	// Fan-out metrics
	FanOuts          prometheus.Counter
	FanOutLatency    prometheus.Histogram
	RecordsReceived  *prometheus.CounterVec
	RecordsDropped   prometheus.Counter
	EndpointTimeouts *prometheus.CounterVec
	SubscribeErrors  *prometheus.CounterVec

	// Resolver metrics
	Resolutions      *prometheus.CounterVec
	StrategyFailures *prometheus.CounterVec

	// Relay pool metrics
	RelaysConnected prometheus.Gauge
}

// New creates and registers the metrics on registry. A nil registry falls
// back to the process default registerer.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		FanOuts: factory.NewCounter(prometheus.CounterOpts{
			Name: "fanout_queries_total",
			Help: "Total number of fan-out queries issued",
		}),
		FanOutLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fanout_latency_seconds",
			Help:    "Time from fan-out start until all relays finished or the timeout fired",
			Buckets: prometheus.DefBuckets,
		}),
		RecordsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fanout_records_received_total",
			Help: "Records received from relays before deduplication",
		}, []string{"relay"}),
		RecordsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "fanout_records_deduplicated_total",
			Help: "Records discarded by deduplication",
		}),
		EndpointTimeouts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fanout_endpoint_timeouts_total",
			Help: "Subscriptions cancelled because the fan-out timeout fired first",
		}, []string{"relay"}),
		SubscribeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fanout_subscribe_errors_total",
			Help: "Subscriptions that could not be opened",
		}, []string{"relay"}),
		Resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_resolutions_total",
			Help: "Identity resolutions by the strategy that produced the key (\"none\" when exhausted)",
		}, []string{"strategy"}),
		StrategyFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_strategy_failures_total",
			Help: "Strategy lookups that failed and were treated as no match",
		}, []string{"strategy"}),
		RelaysConnected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relay_pool_connected",
			Help: "Number of relays currently connected in the pool",
		}),
	}
}

func (m *Metrics) ObserveFanOut(elapsed time.Duration, received, kept int) {
	if m == nil {
		return
	}
	m.FanOuts.Inc()
	m.FanOutLatency.Observe(elapsed.Seconds())
	if received > kept {
		m.RecordsDropped.Add(float64(received - kept))
	}
}

func (m *Metrics) RecordReceived(relay string) {
	if m == nil {
		return
	}
	m.RecordsReceived.WithLabelValues(relay).Inc()
}

func (m *Metrics) EndpointTimedOut(relay string) {
	if m == nil {
		return
	}
	m.EndpointTimeouts.WithLabelValues(relay).Inc()
}

func (m *Metrics) SubscribeFailed(relay string) {
	if m == nil {
		return
	}
	m.SubscribeErrors.WithLabelValues(relay).Inc()
}

// Resolved counts a finished resolution. strategy is "none" when nothing matched.
func (m *Metrics) Resolved(strategy string) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(strategy).Inc()
}

func (m *Metrics) StrategyFailed(strategy string) {
	if m == nil {
		return
	}
	m.StrategyFailures.WithLabelValues(strategy).Inc()
}

func (m *Metrics) SetRelaysConnected(n int) {
	if m == nil {
		return
	}
	m.RelaysConnected.Set(float64(n))
}
