// Package metrics exposes engine counters and gauges to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

const namespace = "sportsarb"

// Metrics owns a private registry and the engine's collectors.
type Metrics struct {
	reg *prometheus.Registry

	opportunities *prometheus.CounterVec
	edge          *prometheus.HistogramVec
	executions    *prometheus.CounterVec
	fetchErrors   *prometheus.CounterVec
	markets       *prometheus.GaugeVec
	matched       *prometheus.GaugeVec
	rejections    *prometheus.CounterVec
	cycle         prometheus.Histogram
}

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		opportunities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "opportunities_total",
			Help: "Arbitrage opportunities detected.",
		}, []string{"sport", "strategy"}),
		edge: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "opportunity_edge_pct",
			Help:    "Edge of detected opportunities in percent.",
			Buckets: []float64{0.5, 1, 1.5, 2, 3, 5, 8, 13},
		}, []string{"sport"}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "executions_total",
			Help: "Executions by terminal result.",
		}, []string{"result"}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "fetch_errors_total",
			Help: "Market fetch failures by venue.",
		}, []string{"venue"}),
		markets: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "markets",
			Help: "Markets fetched in the last cycle.",
		}, []string{"venue", "sport"}),
		matched: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "matched_events",
			Help: "Matched events in the last cycle.",
		}, []string{"sport"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "detector_rejections_total",
			Help: "Matched events the detector rejected, by reason.",
		}, []string{"reason"}),
		cycle: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "scan_cycle_seconds",
			Help:    "Duration of a full scan cycle.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.opportunities, m.edge, m.executions, m.fetchErrors,
		m.markets, m.matched, m.rejections, m.cycle,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// WatchDelay publishes a venue governor's current inter-request delay.
func (m *Metrics) WatchDelay(venue domain.Venue, delay func() time.Duration) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "governor_delay_seconds",
		Help:        "Current adaptive delay between venue requests.",
		ConstLabels: prometheus.Labels{"venue": string(venue)},
	}, func() float64 { return delay().Seconds() }))
}

// ObserveCycle records a completed scan cycle.
func (m *Metrics) ObserveCycle(d time.Duration) { m.cycle.Observe(d.Seconds()) }

// FetchError counts a failed venue fetch.
func (m *Metrics) FetchError(venue domain.Venue) { m.fetchErrors.WithLabelValues(string(venue)).Inc() }

// Markets records how many markets a venue returned for a sport.
func (m *Metrics) Markets(venue domain.Venue, sport domain.Sport, n int) {
	m.markets.WithLabelValues(string(venue), string(sport)).Set(float64(n))
}

// Matched records how many events were paired for a sport.
func (m *Metrics) Matched(sport domain.Sport, n int) {
	m.matched.WithLabelValues(string(sport)).Set(float64(n))
}

// Rejected counts a detector rejection.
func (m *Metrics) Rejected(reason string) { m.rejections.WithLabelValues(reason).Inc() }

// OnOpportunity implements domain.EventSink.
func (m *Metrics) OnOpportunity(_ context.Context, opp domain.ArbitrageOpportunity) error {
	m.opportunities.WithLabelValues(string(opp.Sport), string(opp.Strategy)).Inc()
	m.edge.WithLabelValues(string(opp.Sport)).Observe(opp.EdgePct.InexactFloat64())
	return nil
}

// OnExecutionTerminal implements domain.EventSink.
func (m *Metrics) OnExecutionTerminal(_ context.Context, rec domain.ExecutionRecord) error {
	m.executions.WithLabelValues(string(rec.Result)).Inc()
	return nil
}

var _ domain.EventSink = (*Metrics)(nil)
