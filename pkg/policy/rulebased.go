package policy

import (
	"context"
	"fmt"

	"enacthq/enact/pkg/governance"
)

// RuleBased scans an ordered rule list and applies the first rule whose
// tool, function, and agent patterns all match. When no rule matches,
// the default applies with reason "no rule matched".
//
// Patterns compile once at construction; evaluation allocates nothing
// and requires no locking.
type RuleBased struct {
	rules        []compiledRule
	defaultAllow bool
}

// NewRuleBased compiles the rules and returns the policy. A rule with an
// invalid pattern, unknown action, or empty reason fails construction.
func NewRuleBased(rules []Rule, defaultAllow bool) (*RuleBased, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		cr, err := r.compile()
		if err != nil {
			return nil, fmt.Errorf("rules[%d]: %w", i, err)
		}
		compiled = append(compiled, cr)
	}
	return &RuleBased{rules: compiled, defaultAllow: defaultAllow}, nil
}

// Evaluate implements governance.Policy with first-match semantics.
func (p *RuleBased) Evaluate(_ context.Context, req *governance.Request) governance.Decision {
	for _, r := range p.rules {
		if r.matches(req.AgentID, req.ToolName, req.FunctionName) {
			return governance.Decision{
				Allow:  r.allow,
				Reason: r.reason,
				RuleID: r.id,
			}
		}
	}
	return governance.Decision{Allow: p.defaultAllow, Reason: "no rule matched"}
}

// DefaultAllow reports the policy's default when no rule matches.
func (p *RuleBased) DefaultAllow() bool {
	return p.defaultAllow
}

// Len returns the number of rules.
func (p *RuleBased) Len() int {
	return len(p.rules)
}

// Concat joins several rule-based policies into one: rules are scanned
// in the order the policies are given, and the first policy's default
// applies when nothing matches. The inputs are not modified.
func Concat(policies ...*RuleBased) *RuleBased {
	if len(policies) == 0 {
		return &RuleBased{defaultAllow: false}
	}

	total := 0
	for _, p := range policies {
		total += len(p.rules)
	}
	rules := make([]compiledRule, 0, total)
	for _, p := range policies {
		rules = append(rules, p.rules...)
	}
	return &RuleBased{rules: rules, defaultAllow: policies[0].defaultAllow}
}
