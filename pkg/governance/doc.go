// Package governance implements the decision pipeline that sits between
// autonomous agents and the tools they invoke.
//
// # Overview
//
// Every attempted tool call is expressed as a Request and evaluated by the
// Engine, which composes six subsystems under strict ordering and
// failure-isolation rules:
//
//   - kill-switch gate (oversight)
//   - intent validation (validator pipeline)
//   - rate limiting (per agent+tool token bucket)
//   - quota accounting (per-agent rolling window)
//   - circuit-breaker precheck (per tool)
//   - policy evaluation (pluggable Policy implementations)
//
// Allow decisions may additionally be gated by the approval workflow and
// downgraded by confidence escalation. Every decision the engine produces
// is fanned out to all configured audit sinks exactly once.
//
// # Usage
//
//	engine := governance.New(&governance.Config{
//	    RateLimit: ratelimit.Config{MaxPerMinute: 60, BurstSize: 10},
//	    Quota:     quota.Config{MaxActions: 1000, Window: 24 * time.Hour},
//	    Breaker:   breaker.Config{FailureThreshold: 5, Timeout: 30 * time.Second, SuccessThreshold: 2},
//	    Auditors:  []audit.Sink{fileSink},
//	})
//
//	decision := engine.Evaluate(ctx, req, pol)
//	if decision.Allow {
//	    err := invokeTool(ctx, req)
//	    engine.RecordOutcome(req.ToolName, err == nil)
//	}
//
// # Thread Safety
//
// Engine.Evaluate is re-entrant and safe for concurrent use by many
// agents. Policies are immutable after construction and require no
// locking; limiter, quota, and breaker state use per-key locks.
package governance
