// Package metrics exposes Prometheus collectors for the governance
// pipeline: decision outcomes by stage, evaluation latency, audit sink
// failures, and breaker state.
//
// Label cardinality is deliberately small — stage and outcome, plus the
// tool name on breaker state — so the collectors stay cheap under many
// agents.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Breaker state gauge values.
const (
	BreakerClosed   = 0
	BreakerOpen     = 1
	BreakerHalfOpen = 2
)

// Metrics holds the Prometheus collectors for one engine.
type Metrics struct {
	decisions     *prometheus.CounterVec
	evalDuration  prometheus.Histogram
	sinkFailures  *prometheus.CounterVec
	breakerState  *prometheus.GaugeVec
	killSwitch    prometheus.Gauge
	approvalsOpen prometheus.Gauge
}

// New registers the collectors with reg and returns the Metrics. A nil
// registerer uses the default Prometheus registry; tests pass a fresh
// prometheus.NewRegistry() so repeated engines do not collide.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enact_decisions_total",
				Help: "Governance decisions by pipeline stage and outcome",
			},
			[]string{"source", "outcome"},
		),

		evalDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "enact_evaluation_duration_seconds",
				Help:    "Time spent producing a governance decision",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),

		sinkFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enact_audit_sink_failures_total",
				Help: "Audit sink failures by sink position",
			},
			[]string{"sink"},
		),

		breakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "enact_breaker_state",
				Help: "Circuit breaker state per tool (0=closed, 1=open, 2=half_open)",
			},
			[]string{"tool"},
		),

		killSwitch: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "enact_kill_switch_active",
				Help: "Whether the kill-switch is engaged",
			},
		),

		approvalsOpen: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "enact_approvals_pending",
				Help: "Approval tickets awaiting a decision",
			},
		),
	}
}

// ObserveDecision records one decision and its latency.
func (m *Metrics) ObserveDecision(source string, allow bool, duration time.Duration) {
	outcome := "deny"
	if allow {
		outcome = "allow"
	}
	m.decisions.WithLabelValues(source, outcome).Inc()
	m.evalDuration.Observe(duration.Seconds())
}

// SinkFailure counts a failed audit write for the named sink.
func (m *Metrics) SinkFailure(sink string) {
	m.sinkFailures.WithLabelValues(sink).Inc()
}

// SetBreakerState records the breaker state for a tool.
func (m *Metrics) SetBreakerState(tool string, state float64) {
	m.breakerState.WithLabelValues(tool).Set(state)
}

// SetKillSwitch records whether the kill-switch is engaged.
func (m *Metrics) SetKillSwitch(active bool) {
	if active {
		m.killSwitch.Set(1)
	} else {
		m.killSwitch.Set(0)
	}
}

// SetApprovalsPending records the number of open approval tickets.
func (m *Metrics) SetApprovalsPending(n int) {
	m.approvalsOpen.Set(float64(n))
}
