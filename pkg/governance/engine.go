package governance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"enacthq/enact/pkg/audit"
	"enacthq/enact/pkg/limits/quota"
	"enacthq/enact/pkg/limits/ratelimit"
	"enacthq/enact/pkg/reliability/breaker"
	"enacthq/enact/pkg/telemetry/metrics"
)

// Engine runs the governance pipeline. See the package documentation
// for the stage ordering.
//
// The engine does not hold the tool registry: callers resolve the
// effective policy for a request (see pkg/gateway) and pass it to
// Evaluate. Evaluate never returns an error and never panics; validator
// and policy failures fold into denial decisions.
type Engine struct {
	config *Config

	rate    *ratelimit.Limiter
	quota   *quota.Manager
	breaker *breaker.Breaker

	logger *slog.Logger
}

// New creates an engine from the config.
func New(config *Config) *Engine {
	if config == nil {
		config = &Config{}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		config:  config,
		rate:    ratelimit.NewLimiter(config.RateLimit),
		quota:   quota.NewManager(config.Quota),
		breaker: breaker.New(config.Breaker),
		logger:  logger.With("component", "governance.engine"),
	}
}

// Evaluate runs the pipeline for one request and returns the decision.
//
// The audit fan-out for the decision completes before Evaluate returns:
// a decision is never observable without its audit attempt.
func (e *Engine) Evaluate(ctx context.Context, req *Request, pol Policy) Decision {
	start := time.Now()
	e.prepare(req)

	decision, source := e.decide(ctx, req, pol)
	e.publish(ctx, req, decision, source, time.Since(start))
	return decision
}

// RecordOutcome reports the result of an executed tool call back to the
// circuit breaker. Callers MUST invoke this after every allowed call.
func (e *Engine) RecordOutcome(tool string, ok bool) {
	if ok {
		e.breaker.RecordSuccess(tool)
	} else {
		e.breaker.RecordFailure(tool)
	}
	e.observeBreaker(tool)
}

// RecordDecision audits a decision produced outside the pipeline, such
// as a registry-level "tool expired" denial. The same fan-out and
// failure isolation as Evaluate applies.
func (e *Engine) RecordDecision(ctx context.Context, req *Request, decision Decision, source string, duration time.Duration) {
	e.prepare(req)
	e.publish(ctx, req, decision, source, duration)
}

// RateLimiter exposes the engine's limiter for query and reset.
func (e *Engine) RateLimiter() *ratelimit.Limiter { return e.rate }

// Quota exposes the engine's quota manager for query and reset.
func (e *Engine) Quota() *quota.Manager { return e.quota }

// Breaker exposes the engine's circuit breaker for query and reset.
func (e *Engine) Breaker() *breaker.Breaker { return e.breaker }

// prepare fills the generated request fields.
func (e *Engine) prepare(req *Request) {
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.New().String()
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now()
	}
}

// decide runs the pipeline stages in order, returning the terminal
// decision and the stage that produced it.
func (e *Engine) decide(ctx context.Context, req *Request, pol Policy) (Decision, string) {
	// Stage 1: kill-switch gate.
	if ks := e.config.KillSwitch; ks != nil && ks.Active() {
		status := ks.Status()
		return Deny("kill-switch active: " + status.Reason), SourceKillSwitch
	}

	// Stage 2: intent validation, first failure wins.
	for _, v := range e.config.Validators {
		res, err := e.runValidator(ctx, v, req)
		if err != nil {
			e.logger.Error("validator failed",
				"correlation_id", req.CorrelationID,
				"error", err,
			)
			return Deny("internal: validator error"), SourceInternal
		}
		if !res.Valid {
			return Deny("validation: " + res.Reason), SourceValidation
		}
	}

	// Stage 3: rate limit on (agent, tool).
	if !e.rate.Allow(req.AgentID, req.ToolName) {
		return Deny("rate limit exceeded"), SourceRateLimit
	}

	// Stage 4: quota. Consumed here regardless of the policy outcome —
	// quota protects the decision cost itself.
	if !e.quota.Consume(req.AgentID) {
		return Deny("quota exceeded"), SourceQuota
	}

	// Stage 5: circuit-breaker precheck.
	if e.breaker.IsOpen(req.ToolName) {
		return Deny("circuit open"), SourceBreaker
	}

	// Stage 6: policy evaluation.
	decision, err := e.runPolicy(ctx, req, pol)
	if err != nil {
		e.logger.Error("policy failed",
			"correlation_id", req.CorrelationID,
			"error", err,
		)
		return Deny("internal: policy error"), SourceInternal
	}
	if decision.Reason == "" {
		decision.Reason = "policy decision"
	}
	if !decision.Allow {
		return decision, SourcePolicy
	}

	// Stage 7: approval gate on allow decisions.
	if w := e.config.Approvals; w != nil && w.RequiresApproval(req.ToolName, req.FunctionName) {
		ticket := w.RequestApproval(req.AgentID, req.ToolName, req.FunctionName,
			req.Arguments, req.Justification(), "high")
		return Decision{
			Allow:  false,
			Reason: "awaiting approval",
			Metadata: map[string]any{
				"approval_id": ticket.ID,
			},
		}, SourceApproval
	}

	// Stage 8: confidence escalation on allow decisions.
	if esc := e.config.Escalation; esc != nil {
		if confidence, ok := req.Confidence(); ok {
			assessment := esc.Assess(confidence)
			if assessment.RequiresHuman {
				md := map[string]any{"escalation": string(assessment.Level)}
				if w := e.config.Approvals; w != nil {
					ticket := w.RequestApproval(req.AgentID, req.ToolName, req.FunctionName,
						req.Arguments, req.Justification(), string(assessment.Level))
					md["approval_id"] = ticket.ID
				}
				return Decision{
					Allow:    false,
					Reason:   fmt.Sprintf("requires human %s: confidence %.2f", assessment.Level, confidence),
					Metadata: md,
				}, SourceEscalation
			}
		}
	}

	return decision, SourcePolicy
}

// runValidator isolates validator panics.
func (e *Engine) runValidator(ctx context.Context, v Validator, req *Request) (res ValidationResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("validator panic: %v", r)
		}
	}()
	return v.Validate(ctx, req), nil
}

// runPolicy isolates policy panics. A nil policy fails closed.
func (e *Engine) runPolicy(ctx context.Context, req *Request, pol Policy) (d Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("policy panic: %v", r)
		}
	}()
	if pol == nil {
		return Deny("no policy resolved"), nil
	}
	return pol.Evaluate(ctx, req), nil
}

// publish fans the decision out to every auditor in configuration
// order. A sink failure (error or panic) is logged and counted but
// never affects the decision or the remaining sinks.
func (e *Engine) publish(ctx context.Context, req *Request, decision Decision, source string, duration time.Duration) {
	args := req.Arguments
	if e.config.Redactor != nil {
		args = e.config.Redactor.RedactArguments(args)
	}

	record := &audit.Record{
		Timestamp:      time.Now(),
		AgentID:        req.AgentID,
		Tool:           req.ToolName,
		Function:       req.FunctionName,
		Arguments:      args,
		Allow:          decision.Allow,
		Reason:         decision.Reason,
		DurationMS:     float64(duration.Microseconds()) / 1000.0,
		CorrelationID:  req.CorrelationID,
		DecisionSource: source,
	}

	for i, sink := range e.config.Auditors {
		if err := e.logToSink(ctx, sink, record); err != nil {
			e.logger.Error("audit sink failed",
				"sink_index", i,
				"correlation_id", req.CorrelationID,
				"error", err,
			)
			if e.config.Metrics != nil {
				e.config.Metrics.SinkFailure(fmt.Sprintf("%d", i))
			}
		}
	}

	if e.config.Metrics != nil {
		e.config.Metrics.ObserveDecision(source, decision.Allow, duration)
	}

	e.logger.Info("decision",
		"correlation_id", req.CorrelationID,
		"agent_id", req.AgentID,
		"tool", req.ToolName,
		"function", req.FunctionName,
		"allow", decision.Allow,
		"reason", decision.Reason,
		"source", source,
		"duration_ms", record.DurationMS,
	)
}

// logToSink isolates sink panics.
func (e *Engine) logToSink(ctx context.Context, sink audit.Sink, record *audit.Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	return sink.Log(ctx, record)
}

func (e *Engine) observeBreaker(tool string) {
	if e.config.Metrics == nil {
		return
	}
	var state float64
	switch e.breaker.State(tool) {
	case breaker.StateOpen:
		state = metrics.BreakerOpen
	case breaker.StateHalfOpen:
		state = metrics.BreakerHalfOpen
	default:
		state = metrics.BreakerClosed
	}
	e.config.Metrics.SetBreakerState(tool, state)
}
