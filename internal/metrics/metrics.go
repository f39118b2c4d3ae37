// Package metrics exposes Prometheus counters for flows and the estimator
// together with the ops HTTP server that serves them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tradebot"

// Metrics holds the bot's collectors on a private registry.
type Metrics struct {
	registry  *prometheus.Registry
	flows     *prometheus.CounterVec
	estimates *prometheus.CounterVec
	units     prometheus.Histogram
	fees      prometheus.Histogram
	updates   *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		flows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flow_outcomes_total",
			Help:      "Flow terminations by kind and outcome.",
		}, []string{"flow", "outcome"}),
		estimates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "estimates_total",
			Help:      "Compute budget estimates by outcome.",
		}, []string{"outcome"}),
		units: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "estimate_compute_units",
			Help:      "Requested compute unit limit.",
			Buckets:   prometheus.ExponentialBuckets(1_000, 2.5, 9),
		}),
		fees: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "estimate_priority_fee_micro_lamports",
			Help:      "Priority fee per compute unit after clamping.",
			Buckets:   prometheus.LinearBuckets(10_000, 10_000, 7),
		}),
		updates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Inbound chat events by kind.",
		}, []string{"kind"}),
	}
}

// FlowOutcome counts a flow termination. Safe on a nil receiver.
func (m *Metrics) FlowOutcome(flow, outcome string) {
	if m == nil {
		return
	}
	m.flows.WithLabelValues(flow, outcome).Inc()
}

// Estimate records one estimator run.
func (m *Metrics) Estimate(outcome string, units uint32, microLamports uint64) {
	if m == nil {
		return
	}
	m.estimates.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		m.units.Observe(float64(units))
		m.fees.Observe(float64(microLamports))
	}
}

// Update counts an inbound event ("text", "callback", "command").
func (m *Metrics) Update(kind string) {
	if m == nil {
		return
	}
	m.updates.WithLabelValues(kind).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
