package governance

import (
	"context"
	"time"
)

// Request describes a single attempted tool call. It is immutable from the
// engine's perspective: stages read it but never modify it, with the sole
// exception that a missing CorrelationID or Timestamp is filled in before
// the first stage runs.
type Request struct {
	// AgentID is the stable identifier of the calling agent.
	AgentID string `json:"agent_id"`

	// ToolName is the logical tool identifier.
	ToolName string `json:"tool_name"`

	// FunctionName is the operation on the tool.
	FunctionName string `json:"function_name"`

	// Arguments are the call arguments, heterogeneous JSON-shaped values.
	Arguments map[string]any `json:"arguments"`

	// Context carries caller-supplied metadata. Recognized keys are
	// "justification" (string) and "confidence" (number in [0,1]);
	// unrecognized keys pass through untouched.
	Context map[string]any `json:"context"`

	// CorrelationID is an optional trace identifier. The engine generates
	// one if absent.
	CorrelationID string `json:"correlation_id"`

	// Timestamp is the wall-clock capture time of the request.
	Timestamp time.Time `json:"timestamp"`
}

// Justification returns the justification string from the request context,
// or the empty string if none was supplied.
func (r *Request) Justification() string {
	if r.Context == nil {
		return ""
	}
	s, _ := r.Context["justification"].(string)
	return s
}

// Confidence returns the caller-reported confidence from the request
// context. The second return value reports whether a numeric confidence
// was present.
func (r *Request) Confidence() (float64, bool) {
	if r.Context == nil {
		return 0, false
	}
	switch v := r.Context["confidence"].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}

// Decision is the engine's output for a single request.
type Decision struct {
	// Allow reports whether the tool call may proceed.
	Allow bool `json:"allow"`

	// Reason explains the decision. It is always non-empty.
	Reason string `json:"reason"`

	// RuleID identifies the policy rule that produced the decision, if any.
	RuleID string `json:"rule_id,omitempty"`

	// Metadata carries decision-specific extras such as the approval
	// ticket ID for escalated requests.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Deny constructs a denial decision with the given reason.
func Deny(reason string) Decision {
	return Decision{Allow: false, Reason: reason}
}

// Allow constructs an allow decision with the given reason.
func Allow(reason string) Decision {
	return Decision{Allow: true, Reason: reason}
}

// Policy decides whether a request may proceed. Implementations must be
// safe for concurrent use and must not retain the request.
//
// Built-in policies live in pkg/policy; any type satisfying this
// interface can be supplied instead.
type Policy interface {
	Evaluate(ctx context.Context, req *Request) Decision
}

// ValidationResult is the outcome of a single intent validator.
type ValidationResult struct {
	// Valid reports whether the request passed the validator.
	Valid bool

	// Reason explains the failure when Valid is false.
	Reason string
}

// Validator checks the intent of a request before any policy runs.
// The engine runs validators in order and short-circuits on the first
// invalid result.
type Validator interface {
	Validate(ctx context.Context, req *Request) ValidationResult
}

// Decision sources recorded in audit records. They identify the pipeline
// stage that produced the final decision.
const (
	SourceKillSwitch = "kill_switch"
	SourceValidation = "validation"
	SourceRateLimit  = "rate_limit"
	SourceQuota      = "quota"
	SourceBreaker    = "breaker"
	SourcePolicy     = "policy"
	SourceApproval   = "approval"
	SourceEscalation = "escalation"
	SourceRegistry   = "registry"
	SourceInternal   = "internal"
)
