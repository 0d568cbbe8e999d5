package policy

import (
	"context"
	"sync/atomic"

	"enacthq/enact/pkg/governance"
)

// Reloadable holds a policy that can be swapped at runtime, e.g. by the
// loader's file watcher. Evaluation always sees a complete snapshot;
// swaps are atomic and never block readers.
type Reloadable struct {
	current atomic.Pointer[policyBox]
}

// policyBox exists because atomic.Pointer needs a concrete type to wrap
// the interface value.
type policyBox struct {
	policy governance.Policy
}

// NewReloadable creates a holder with the given initial policy.
func NewReloadable(initial governance.Policy) *Reloadable {
	r := &Reloadable{}
	r.Swap(initial)
	return r
}

// Swap replaces the active policy. A nil policy is replaced with
// DenyAll so evaluation never dereferences nothing.
func (r *Reloadable) Swap(p governance.Policy) {
	if p == nil {
		p = DenyAll()
	}
	r.current.Store(&policyBox{policy: p})
}

// Current returns the active policy snapshot.
func (r *Reloadable) Current() governance.Policy {
	return r.current.Load().policy
}

// Evaluate implements governance.Policy by delegating to the active
// snapshot.
func (r *Reloadable) Evaluate(ctx context.Context, req *governance.Request) governance.Decision {
	return r.Current().Evaluate(ctx, req)
}
