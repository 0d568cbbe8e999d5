package policy

import (
	"context"

	"enacthq/enact/pkg/governance"
)

// Static returns the same decision for every request.
type Static struct {
	decision governance.Decision
}

// AllowAll permits every request.
func AllowAll() *Static {
	return &Static{decision: governance.Decision{Allow: true, Reason: "allowed by policy"}}
}

// DenyAll rejects every request.
func DenyAll() *Static {
	return &Static{decision: governance.Decision{Allow: false, Reason: "denied by policy"}}
}

// Constant returns the given decision for every request. An empty reason
// is replaced so decisions stay explicable.
func Constant(allow bool, reason string) *Static {
	if reason == "" {
		if allow {
			reason = "allowed by policy"
		} else {
			reason = "denied by policy"
		}
	}
	return &Static{decision: governance.Decision{Allow: allow, Reason: reason}}
}

// Evaluate implements governance.Policy.
func (p *Static) Evaluate(_ context.Context, _ *governance.Request) governance.Decision {
	return p.decision
}
