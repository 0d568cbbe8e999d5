package governance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"enacthq/enact/pkg/audit"
	"enacthq/enact/pkg/limits/quota"
	"enacthq/enact/pkg/limits/ratelimit"
	"enacthq/enact/pkg/oversight"
	"enacthq/enact/pkg/reliability/breaker"
)

// captureSink records everything it is asked to log.
type captureSink struct {
	mu      sync.Mutex
	records []*audit.Record
	fail    bool
	panics  bool
}

func (s *captureSink) Log(_ context.Context, rec *audit.Record) error {
	if s.panics {
		panic("sink exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *rec
	s.records = append(s.records, &copied)
	if s.fail {
		return errors.New("sink failure")
	}
	return nil
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *captureSink) last() *audit.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) == 0 {
		return nil
	}
	return s.records[len(s.records)-1]
}

type policyFunc func(ctx context.Context, req *Request) Decision

func (f policyFunc) Evaluate(ctx context.Context, req *Request) Decision { return f(ctx, req) }

type validatorFunc func(ctx context.Context, req *Request) ValidationResult

func (f validatorFunc) Validate(ctx context.Context, req *Request) ValidationResult {
	return f(ctx, req)
}

func allowPolicy() Policy {
	return policyFunc(func(context.Context, *Request) Decision {
		return Decision{Allow: true, Reason: "test allow"}
	})
}

func newRequest(agentID, tool, function string) *Request {
	return &Request{
		AgentID:      agentID,
		ToolName:     tool,
		FunctionName: function,
		Arguments:    map[string]any{},
		Context:      map[string]any{},
	}
}

func testConfig(sink audit.Sink) *Config {
	return &Config{
		RateLimit: ratelimit.Config{MaxPerMinute: 6000, BurstSize: 100},
		Quota:     quota.Config{MaxActions: 1000, Window: time.Hour},
		Breaker:   breaker.Config{FailureThreshold: 5, SuccessThreshold: 1, Timeout: time.Minute},
		Auditors:  []audit.Sink{sink},
	}
}

func TestEngine_AllowFlow(t *testing.T) {
	sink := &captureSink{}
	engine := New(testConfig(sink))

	d := engine.Evaluate(context.Background(), newRequest("a1", "db", "select_users"), allowPolicy())

	if !d.Allow {
		t.Fatalf("expected allow, got %q", d.Reason)
	}
	if sink.count() != 1 {
		t.Errorf("expected exactly one audit record, got %d", sink.count())
	}

	rec := sink.last()
	if rec.AgentID != "a1" || rec.Tool != "db" || rec.Function != "select_users" {
		t.Errorf("audit record fields wrong: %+v", rec)
	}
	if !rec.Allow || rec.DecisionSource != SourcePolicy {
		t.Errorf("audit outcome wrong: allow=%v source=%s", rec.Allow, rec.DecisionSource)
	}
	if rec.CorrelationID == "" {
		t.Error("correlation ID should be generated")
	}
	if rec.Reason == "" {
		t.Error("reason must be non-empty")
	}
}

func TestEngine_KillSwitchDominates(t *testing.T) {
	sink := &captureSink{}
	cfg := testConfig(sink)
	cfg.KillSwitch = oversight.NewKillSwitch(nil)
	validatorCalls := 0
	cfg.Validators = []Validator{validatorFunc(func(context.Context, *Request) ValidationResult {
		validatorCalls++
		return ValidationResult{Valid: true}
	})}
	engine := New(cfg)

	cfg.KillSwitch.Activate("op", "runaway agent")

	d := engine.Evaluate(context.Background(), newRequest("a1", "db", "f"), allowPolicy())
	if d.Allow {
		t.Fatal("kill-switch must deny")
	}
	if d.Reason != "kill-switch active: runaway agent" {
		t.Errorf("unexpected reason: %q", d.Reason)
	}
	if validatorCalls != 0 {
		t.Error("validators must not run under the kill-switch")
	}
	if sink.count() != 1 {
		t.Error("kill-switch denials are still audited")
	}
	if sink.last().DecisionSource != SourceKillSwitch {
		t.Errorf("wrong source: %s", sink.last().DecisionSource)
	}

	// Deactivation restores normal flow.
	cfg.KillSwitch.Deactivate("op")
	d = engine.Evaluate(context.Background(), newRequest("a1", "db", "f"), allowPolicy())
	if !d.Allow {
		t.Errorf("expected allow after deactivation, got %q", d.Reason)
	}
}

func TestEngine_ValidationShortCircuit(t *testing.T) {
	sink := &captureSink{}
	cfg := testConfig(sink)
	secondRan := false
	cfg.Validators = []Validator{
		validatorFunc(func(context.Context, *Request) ValidationResult {
			return ValidationResult{Valid: false, Reason: "no justification"}
		}),
		validatorFunc(func(context.Context, *Request) ValidationResult {
			secondRan = true
			return ValidationResult{Valid: true}
		}),
	}
	engine := New(cfg)

	d := engine.Evaluate(context.Background(), newRequest("a1", "db", "f"), allowPolicy())
	if d.Allow {
		t.Fatal("invalid request must be denied")
	}
	if d.Reason != "validation: no justification" {
		t.Errorf("unexpected reason: %q", d.Reason)
	}
	if secondRan {
		t.Error("pipeline must short-circuit on first invalid result")
	}
	if sink.last().DecisionSource != SourceValidation {
		t.Errorf("wrong source: %s", sink.last().DecisionSource)
	}
}

func TestEngine_RateLimitDenial(t *testing.T) {
	sink := &captureSink{}
	cfg := testConfig(sink)
	cfg.RateLimit = ratelimit.Config{MaxPerMinute: 60, BurstSize: 3}
	engine := New(cfg)

	for i := 0; i < 3; i++ {
		d := engine.Evaluate(context.Background(), newRequest("a1", "t", "f"), allowPolicy())
		if !d.Allow {
			t.Fatalf("request %d should pass: %q", i+1, d.Reason)
		}
	}

	d := engine.Evaluate(context.Background(), newRequest("a1", "t", "f"), allowPolicy())
	if d.Allow || d.Reason != "rate limit exceeded" {
		t.Errorf("expected rate limit denial, got allow=%v reason=%q", d.Allow, d.Reason)
	}
	if sink.last().DecisionSource != SourceRateLimit {
		t.Errorf("wrong source: %s", sink.last().DecisionSource)
	}
}

func TestEngine_QuotaDenial(t *testing.T) {
	sink := &captureSink{}
	cfg := testConfig(sink)
	cfg.Quota = quota.Config{MaxActions: 2, Window: time.Hour}
	engine := New(cfg)

	engine.Evaluate(context.Background(), newRequest("a1", "t", "f"), allowPolicy())
	engine.Evaluate(context.Background(), newRequest("a1", "t", "f"), allowPolicy())

	d := engine.Evaluate(context.Background(), newRequest("a1", "t", "f"), allowPolicy())
	if d.Allow || d.Reason != "quota exceeded" {
		t.Errorf("expected quota denial, got allow=%v reason=%q", d.Allow, d.Reason)
	}
}

func TestEngine_QuotaConsumedOnPolicyDenial(t *testing.T) {
	// Quota protects the decision cost itself: a policy denial still
	// consumes quota.
	cfg := testConfig(&captureSink{})
	cfg.Quota = quota.Config{MaxActions: 5, Window: time.Hour}
	engine := New(cfg)

	deny := policyFunc(func(context.Context, *Request) Decision {
		return Decision{Allow: false, Reason: "policy says no"}
	})
	engine.Evaluate(context.Background(), newRequest("a1", "t", "f"), deny)

	if got := engine.Quota().Remaining("a1"); got != 4 {
		t.Errorf("policy denial should consume quota, remaining = %d", got)
	}
}

func TestEngine_BreakerDenial(t *testing.T) {
	sink := &captureSink{}
	cfg := testConfig(sink)
	cfg.Breaker = breaker.Config{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute}
	engine := New(cfg)

	engine.RecordOutcome("t", false)
	engine.RecordOutcome("t", false)

	d := engine.Evaluate(context.Background(), newRequest("a1", "t", "f"), allowPolicy())
	if d.Allow || d.Reason != "circuit open" {
		t.Errorf("expected circuit open denial, got allow=%v reason=%q", d.Allow, d.Reason)
	}
	if sink.last().DecisionSource != SourceBreaker {
		t.Errorf("wrong source: %s", sink.last().DecisionSource)
	}

	// Other tools are unaffected.
	d = engine.Evaluate(context.Background(), newRequest("a1", "other", "f"), allowPolicy())
	if !d.Allow {
		t.Errorf("other tool should pass: %q", d.Reason)
	}
}

func TestEngine_BreakerRecovery(t *testing.T) {
	cfg := testConfig(&captureSink{})
	cfg.Breaker = breaker.Config{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Second}
	engine := New(cfg)

	engine.RecordOutcome("t", false)
	engine.RecordOutcome("t", false)
	if d := engine.Evaluate(context.Background(), newRequest("a1", "t", "f"), allowPolicy()); d.Allow {
		t.Fatal("circuit should be open")
	}

	time.Sleep(1100 * time.Millisecond)

	// Cooldown elapsed: the probe goes through the whole pipeline.
	d := engine.Evaluate(context.Background(), newRequest("a1", "t", "f"), allowPolicy())
	if !d.Allow {
		t.Fatalf("probe should be admitted: %q", d.Reason)
	}

	engine.RecordOutcome("t", true)
	if got := engine.Breaker().State("t"); got != breaker.StateClosed {
		t.Errorf("expected closed after probe success, got %s", got)
	}
}

func TestEngine_PolicyDenial(t *testing.T) {
	sink := &captureSink{}
	engine := New(testConfig(sink))

	deny := policyFunc(func(context.Context, *Request) Decision {
		return Decision{Allow: false, Reason: "not on the list", RuleID: "r7"}
	})
	d := engine.Evaluate(context.Background(), newRequest("a1", "t", "f"), deny)

	if d.Allow || d.Reason != "not on the list" || d.RuleID != "r7" {
		t.Errorf("unexpected decision: %+v", d)
	}
	if sink.last().DecisionSource != SourcePolicy {
		t.Errorf("wrong source: %s", sink.last().DecisionSource)
	}
}

func TestEngine_PolicyPanicIsCaught(t *testing.T) {
	sink := &captureSink{}
	engine := New(testConfig(sink))

	boom := policyFunc(func(context.Context, *Request) Decision {
		panic("policy exploded")
	})
	d := engine.Evaluate(context.Background(), newRequest("a1", "t", "f"), boom)

	if d.Allow {
		t.Fatal("panicking policy must fail closed")
	}
	if d.Reason != "internal: policy error" {
		t.Errorf("unexpected reason: %q", d.Reason)
	}
	if sink.last().DecisionSource != SourceInternal {
		t.Errorf("wrong source: %s", sink.last().DecisionSource)
	}
}

func TestEngine_ValidatorPanicIsCaught(t *testing.T) {
	cfg := testConfig(&captureSink{})
	cfg.Validators = []Validator{validatorFunc(func(context.Context, *Request) ValidationResult {
		panic("validator exploded")
	})}
	engine := New(cfg)

	d := engine.Evaluate(context.Background(), newRequest("a1", "t", "f"), allowPolicy())
	if d.Allow || d.Reason != "internal: validator error" {
		t.Errorf("expected internal denial, got allow=%v reason=%q", d.Allow, d.Reason)
	}
}

func TestEngine_NilPolicyFailsClosed(t *testing.T) {
	engine := New(testConfig(&captureSink{}))

	d := engine.Evaluate(context.Background(), newRequest("a1", "t", "f"), nil)
	if d.Allow {
		t.Error("nil policy must deny")
	}
	if d.Reason == "" {
		t.Error("reason must be non-empty")
	}
}

func TestEngine_EmptyPolicyReasonFilled(t *testing.T) {
	engine := New(testConfig(&captureSink{}))

	blank := policyFunc(func(context.Context, *Request) Decision {
		return Decision{Allow: true}
	})
	d := engine.Evaluate(context.Background(), newRequest("a1", "t", "f"), blank)
	if d.Reason == "" {
		t.Error("engine must fill an empty policy reason")
	}
}

func TestEngine_SinkFailureIsolation(t *testing.T) {
	failing := &captureSink{fail: true}
	panicking := &captureSink{panics: true}
	healthy := &captureSink{}

	cfg := testConfig(failing)
	cfg.Auditors = []audit.Sink{failing, panicking, healthy}
	engine := New(cfg)

	d := engine.Evaluate(context.Background(), newRequest("a1", "t", "f"), allowPolicy())
	if !d.Allow {
		t.Fatalf("sink failures must not affect the decision: %q", d.Reason)
	}

	// Every sink was attempted exactly once, panics included.
	if failing.count() != 1 {
		t.Errorf("failing sink attempts = %d, want 1", failing.count())
	}
	if healthy.count() != 1 {
		t.Errorf("healthy sink attempts = %d, want 1", healthy.count())
	}
}

func TestEngine_ApprovalGate(t *testing.T) {
	sink := &captureSink{}
	cfg := testConfig(sink)
	approvals, _ := oversight.NewApprovalWorkflow(oversight.ApprovalConfig{
		HighRiskTools: []string{"payments"},
	})
	cfg.Approvals = approvals
	engine := New(cfg)

	d := engine.Evaluate(context.Background(), newRequest("a1", "payments", "charge"), allowPolicy())
	if d.Allow {
		t.Fatal("high-risk allow must be gated behind approval")
	}
	if d.Reason != "awaiting approval" {
		t.Errorf("unexpected reason: %q", d.Reason)
	}

	id, ok := d.Metadata["approval_id"].(string)
	if !ok || id == "" {
		t.Fatal("metadata must carry the approval ticket ID")
	}
	ticket, found := approvals.Get(id)
	if !found || ticket.Status != oversight.StatusPending {
		t.Errorf("expected a pending ticket, got %+v found=%v", ticket, found)
	}
	if sink.last().DecisionSource != SourceApproval {
		t.Errorf("wrong source: %s", sink.last().DecisionSource)
	}

	// Policy denials skip the gate entirely.
	deny := policyFunc(func(context.Context, *Request) Decision {
		return Decision{Allow: false, Reason: "nope"}
	})
	before := len(approvals.Pending())
	engine.Evaluate(context.Background(), newRequest("a1", "payments", "charge"), deny)
	if len(approvals.Pending()) != before {
		t.Error("denied requests must not create tickets")
	}
}

func TestEngine_ConfidenceEscalation(t *testing.T) {
	sink := &captureSink{}
	cfg := testConfig(sink)
	approvals, _ := oversight.NewApprovalWorkflow(oversight.ApprovalConfig{})
	cfg.Approvals = approvals
	cfg.Escalation = oversight.NewConfidenceEscalation(oversight.EscalationConfig{})
	engine := New(cfg)

	req := newRequest("a1", "db", "select_users")
	req.Context["confidence"] = 0.4

	d := engine.Evaluate(context.Background(), req, allowPolicy())
	if d.Allow {
		t.Fatal("confidence 0.4 must not be allowed under defaults")
	}
	if d.Metadata["escalation"] != string(oversight.LevelApproval) {
		t.Errorf("expected approval escalation, got %v", d.Metadata["escalation"])
	}

	id, ok := d.Metadata["approval_id"].(string)
	if !ok {
		t.Fatal("escalation should enqueue an approval ticket")
	}
	if _, found := approvals.Get(id); !found {
		t.Error("matching ticket should exist")
	}
	if sink.last().DecisionSource != SourceEscalation {
		t.Errorf("wrong source: %s", sink.last().DecisionSource)
	}
}

func TestEngine_HighConfidencePasses(t *testing.T) {
	cfg := testConfig(&captureSink{})
	cfg.Escalation = oversight.NewConfidenceEscalation(oversight.EscalationConfig{})
	engine := New(cfg)

	req := newRequest("a1", "db", "f")
	req.Context["confidence"] = 0.95

	d := engine.Evaluate(context.Background(), req, allowPolicy())
	if !d.Allow {
		t.Errorf("high confidence should pass, got %q", d.Reason)
	}
}

func TestEngine_MissingConfidenceSkipsEscalation(t *testing.T) {
	cfg := testConfig(&captureSink{})
	cfg.Escalation = oversight.NewConfidenceEscalation(oversight.EscalationConfig{})
	engine := New(cfg)

	d := engine.Evaluate(context.Background(), newRequest("a1", "db", "f"), allowPolicy())
	if !d.Allow {
		t.Errorf("requests without confidence should not be escalated: %q", d.Reason)
	}
}

func TestEngine_Idempotence(t *testing.T) {
	engine := New(testConfig(&captureSink{}))

	deny := policyFunc(func(context.Context, *Request) Decision {
		return Decision{Allow: false, Reason: "static deny", RuleID: "r1"}
	})

	var first Decision
	for i := 0; i < 5; i++ {
		d := engine.Evaluate(context.Background(), newRequest("a1", "t", "f"), deny)
		if i == 0 {
			first = d
			continue
		}
		if d.Allow != first.Allow || d.Reason != first.Reason || d.RuleID != first.RuleID {
			t.Errorf("call %d diverged: %+v vs %+v", i+1, d, first)
		}
	}
}

func TestEngine_RedactsArguments(t *testing.T) {
	sink := &captureSink{}
	cfg := testConfig(sink)
	cfg.Redactor = audit.NewRedactor()
	engine := New(cfg)

	req := newRequest("a1", "http", "post")
	req.Arguments["auth"] = "Bearer abcdef1234567890"

	engine.Evaluate(context.Background(), req, allowPolicy())

	got, _ := sink.last().Arguments["auth"].(string)
	if got != "[REDACTED:bearer_token]" {
		t.Errorf("expected redacted token, got %q", got)
	}
	// The request itself is untouched.
	if req.Arguments["auth"] != "Bearer abcdef1234567890" {
		t.Error("redaction must not modify the request")
	}
}

func TestEngine_ConcurrentEvaluations(t *testing.T) {
	sink := &captureSink{}
	engine := New(testConfig(sink))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			agent := "a1"
			if n%2 == 0 {
				agent = "a2"
			}
			engine.Evaluate(context.Background(), newRequest(agent, "t", "f"), allowPolicy())
		}(i)
	}
	wg.Wait()

	if sink.count() != 50 {
		t.Errorf("expected 50 audit records, got %d", sink.count())
	}
}

func TestEngine_RecordDecision(t *testing.T) {
	sink := &captureSink{}
	engine := New(testConfig(sink))

	req := newRequest("a1", "old-tool", "f")
	engine.RecordDecision(context.Background(), req, Deny("tool expired"), SourceRegistry, 0)

	rec := sink.last()
	if rec == nil || rec.Reason != "tool expired" || rec.DecisionSource != SourceRegistry {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.CorrelationID == "" {
		t.Error("RecordDecision should fill the correlation ID")
	}
}
