// Package policy provides the built-in governance policies.
//
// A policy is a pure function from request to decision, expressed as the
// governance.Policy interface. Built-ins:
//
//   - RuleBased: ordered rule list with first-match semantics
//   - Temporal: allow inside configured time windows
//   - Remote: delegate the decision to an external HTTP service
//   - AllowAll / DenyAll: constants
//   - Reloadable: atomic holder that swaps the active policy at runtime
//
// All policies are immutable after construction (Reloadable swaps whole
// immutable snapshots) and safe for concurrent evaluation. Anything else
// satisfying governance.Policy can be used in their place.
package policy
