package governance

import (
	"log/slog"

	"enacthq/enact/pkg/audit"
	"enacthq/enact/pkg/limits/quota"
	"enacthq/enact/pkg/limits/ratelimit"
	"enacthq/enact/pkg/oversight"
	"enacthq/enact/pkg/reliability/breaker"
	"enacthq/enact/pkg/telemetry/metrics"
)

// Config assembles an Engine.
//
// The limiter, quota manager, and breaker are constructed by the engine
// from their configs; everything else is injected so the composition
// root (and tests) control lifecycle and sharing.
type Config struct {
	// RateLimit configures the per-(agent, tool) token bucket.
	RateLimit ratelimit.Config

	// Quota configures the per-agent rolling window.
	Quota quota.Config

	// Breaker configures the per-tool circuit breaker.
	Breaker breaker.Config

	// Validators run in order before any policy; the first invalid
	// result denies the request.
	Validators []Validator

	// Auditors receive every decision, in order. A failing auditor
	// never affects the decision or later auditors.
	Auditors []audit.Sink

	// Redactor, if set, redacts request arguments before audit fan-out.
	Redactor *audit.Redactor

	// KillSwitch, if set, gates the whole pipeline.
	KillSwitch *oversight.KillSwitch

	// Approvals, if set, gates high-risk allow decisions behind human
	// approval and receives escalation tickets.
	Approvals *oversight.ApprovalWorkflow

	// Escalation, if set, downgrades low-confidence allow decisions.
	Escalation *oversight.ConfidenceEscalation

	// Metrics, if set, receives decision and sink-failure observations.
	Metrics *metrics.Metrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}
