package policy

import (
	"fmt"
	"regexp"
)

// Action is what a matching rule does with a request.
type Action string

const (
	// ActionAllow permits the request.
	ActionAllow Action = "allow"

	// ActionDeny rejects the request.
	ActionDeny Action = "deny"
)

// Valid reports whether the action is a known value.
func (a Action) Valid() bool {
	return a == ActionAllow || a == ActionDeny
}

// Rule matches requests by tool, function, and agent regexes.
//
// Patterns are anchored to the full value; a bare "*" is shorthand for
// ".*". An empty AgentID defaults to ".*".
type Rule struct {
	// Tool matches the request's tool name.
	Tool string `yaml:"tool" json:"tool"`

	// Function matches the request's function name.
	Function string `yaml:"function" json:"function"`

	// AgentID matches the calling agent. Default: ".*".
	AgentID string `yaml:"agent_id" json:"agent_id"`

	// Action is "allow" or "deny".
	Action Action `yaml:"action" json:"action"`

	// Reason is reported on a match. Must be non-empty.
	Reason string `yaml:"reason" json:"reason"`

	// ID optionally identifies the rule in decisions and audit records.
	ID string `yaml:"id" json:"id,omitempty"`
}

// compiledRule is a Rule with its patterns compiled once at policy
// construction.
type compiledRule struct {
	tool     *regexp.Regexp
	function *regexp.Regexp
	agent    *regexp.Regexp
	allow    bool
	reason   string
	id       string
}

// compile validates the rule and compiles its patterns.
func (r Rule) compile() (compiledRule, error) {
	if !r.Action.Valid() {
		return compiledRule{}, &RuleError{Rule: r.ID, Field: "action", Cause: fmt.Errorf("unknown action %q", r.Action)}
	}
	if r.Reason == "" {
		return compiledRule{}, &RuleError{Rule: r.ID, Field: "reason", Cause: fmt.Errorf("reason must be non-empty")}
	}

	tool, err := compileAnchored(r.Tool)
	if err != nil {
		return compiledRule{}, &RuleError{Rule: r.ID, Field: "tool", Cause: err}
	}
	function, err := compileAnchored(r.Function)
	if err != nil {
		return compiledRule{}, &RuleError{Rule: r.ID, Field: "function", Cause: err}
	}
	agentPat := r.AgentID
	if agentPat == "" {
		agentPat = ".*"
	}
	agent, err := compileAnchored(agentPat)
	if err != nil {
		return compiledRule{}, &RuleError{Rule: r.ID, Field: "agent_id", Cause: err}
	}

	return compiledRule{
		tool:     tool,
		function: function,
		agent:    agent,
		allow:    r.Action == ActionAllow,
		reason:   r.Reason,
		id:       r.ID,
	}, nil
}

// matches reports whether all three patterns match the request fields.
func (r compiledRule) matches(agentID, tool, function string) bool {
	return r.tool.MatchString(tool) &&
		r.function.MatchString(function) &&
		r.agent.MatchString(agentID)
}

// compileAnchored compiles a pattern anchored to the full value.
// "*" normalizes to ".*".
func compileAnchored(pattern string) (*regexp.Regexp, error) {
	if pattern == "*" {
		pattern = ".*"
	}
	return regexp.Compile(`\A(?:` + pattern + `)\z`)
}
