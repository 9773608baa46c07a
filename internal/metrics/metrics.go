// Package metrics exposes Prometheus instrumentation for the spend
// tracking pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector registers and records spendgate metrics on a dedicated
// registry.
type Collector struct {
	registry *prometheus.Registry

	recordsTotal  *prometheus.CounterVec
	spendTotal    *prometheus.CounterVec
	tokensTotal   *prometheus.CounterVec
	buildDuration prometheus.Histogram
	rollupSpend   *prometheus.GaugeVec
}

// NewCollector creates a collector. If registry is nil a new one is used.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,
		recordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spendgate",
			Name:      "spend_records_total",
			Help:      "Spend log records written, by status and call type.",
		}, []string{"status", "call_type"}),
		spendTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spendgate",
			Name:      "spend_dollars_total",
			Help:      "Total recorded spend in dollars, by team.",
		}, []string{"team_id"}),
		tokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spendgate",
			Name:      "tokens_total",
			Help:      "Total recorded tokens, by kind.",
		}, []string{"kind"}),
		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "spendgate",
			Name:      "record_build_duration_seconds",
			Help:      "Time spent assembling one spend log record.",
			Buckets:   []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025},
		}),
		rollupSpend: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "spendgate",
			Name:      "rollup_daily_spend_dollars",
			Help:      "Previous-day spend from the nightly rollup, by team and customer.",
		}, []string{"team_id", "end_user"}),
	}

	registry.MustRegister(
		c.recordsTotal,
		c.spendTotal,
		c.tokensTotal,
		c.buildDuration,
		c.rollupSpend,
	)
	return c
}

// RecordWritten counts one persisted record and its spend/token sums.
func (c *Collector) RecordWritten(status, callType, teamID string, spend float64, promptTokens, completionTokens int) {
	c.recordsTotal.WithLabelValues(status, callType).Inc()
	if teamID == "" {
		teamID = "unassigned"
	}
	c.spendTotal.WithLabelValues(teamID).Add(spend)
	c.tokensTotal.WithLabelValues("prompt").Add(float64(promptTokens))
	c.tokensTotal.WithLabelValues("completion").Add(float64(completionTokens))
}

// ObserveBuildDuration records how long record assembly took.
func (c *Collector) ObserveBuildDuration(seconds float64) {
	c.buildDuration.Observe(seconds)
}

// SetRollupSpend publishes a rollup day total.
func (c *Collector) SetRollupSpend(teamID, endUser string, spend float64) {
	c.rollupSpend.WithLabelValues(teamID, endUser).Set(spend)
}

// Handler serves the /metrics endpoint for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
