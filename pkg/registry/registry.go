// Package registry tracks the tools agents may invoke, the groups agents
// belong to, and the policies attached to each.
//
// # Policy Resolution
//
// PolicyForTool resolves with a strict precedence, highest first:
//
//  1. the tool's own policy
//  2. the agent-specific policy
//  3. the policies of the agent's groups, in group creation order —
//     concatenated into one rule list when all are rule-based,
//     otherwise the first non-nil
//  4. none
//
// This precedence is a hard invariant of the governance model.
package registry

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"enacthq/enact/pkg/governance"
	"enacthq/enact/pkg/policy"
)

// ToolSpec describes a tool being registered.
type ToolSpec struct {
	// Name is the unique tool name.
	Name string

	// Handle is the opaque callable the caller will invoke on allow.
	Handle any

	// Policy optionally overrides agent and group policies for this
	// tool.
	Policy governance.Policy

	// AllowedAgents restricts access to the listed agents. Empty
	// together with AllowedGroups means the tool is public.
	AllowedAgents []string

	// AllowedGroups restricts access to members of the listed groups.
	AllowedGroups []string

	// ExpiresAt makes the tool invisible after the given time. Zero
	// means no expiry.
	ExpiresAt time.Time
}

type toolEntry struct {
	spec          ToolSpec
	allowedAgents map[string]struct{}
	allowedGroups map[string]struct{}
}

type group struct {
	name    string
	policy  governance.Policy
	members map[string]struct{}
}

// Registry is the mutable store of tools, groups, and agent policies.
// All methods are safe for concurrent use.
type Registry struct {
	mu            sync.RWMutex
	tools         map[string]*toolEntry
	groups        map[string]*group
	groupOrder    []string
	agentPolicies map[string]governance.Policy
	logger        *slog.Logger

	// now is overridable for expiry tests.
	now func() time.Time
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		tools:         make(map[string]*toolEntry),
		groups:        make(map[string]*group),
		agentPolicies: make(map[string]governance.Policy),
		logger:        slog.Default().With("component", "registry"),
		now:           time.Now,
	}
}

// RegisterTool adds a tool. Registering an empty or duplicate name is a
// programmer error and fails.
func (r *Registry) RegisterTool(spec ToolSpec) error {
	if spec.Name == "" {
		return &RegistrationError{Kind: "tool", Name: spec.Name, Cause: errEmptyName}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[spec.Name]; exists {
		return &RegistrationError{Kind: "tool", Name: spec.Name, Cause: errDuplicate}
	}

	entry := &toolEntry{
		spec:          spec,
		allowedAgents: toSet(spec.AllowedAgents),
		allowedGroups: toSet(spec.AllowedGroups),
	}
	r.tools[spec.Name] = entry

	r.logger.Info("tool registered",
		"tool", spec.Name,
		"restricted", len(entry.allowedAgents) > 0 || len(entry.allowedGroups) > 0,
	)
	return nil
}

// RemoveTool deletes a tool. Removing an unknown tool is a no-op.
func (r *Registry) RemoveTool(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// CreateGroup adds an agent group with an optional group policy.
func (r *Registry) CreateGroup(name string, pol governance.Policy) error {
	if name == "" {
		return &RegistrationError{Kind: "group", Name: name, Cause: errEmptyName}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.groups[name]; exists {
		return &RegistrationError{Kind: "group", Name: name, Cause: errDuplicate}
	}
	r.groups[name] = &group{
		name:    name,
		policy:  pol,
		members: make(map[string]struct{}),
	}
	r.groupOrder = append(r.groupOrder, name)
	return nil
}

// AddAgentToGroup makes the agent a member of the group.
func (r *Registry) AddAgentToGroup(agentID, groupName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.groups[groupName]
	if !ok {
		return &RegistrationError{Kind: "group", Name: groupName, Cause: errUnknown}
	}
	g.members[agentID] = struct{}{}
	return nil
}

// SetAgentPolicy installs (or replaces) an agent-specific policy.
func (r *Registry) SetAgentPolicy(agentID string, pol governance.Policy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pol == nil {
		delete(r.agentPolicies, agentID)
		return
	}
	r.agentPolicies[agentID] = pol
}

// GetTool returns the tool's handle if the tool exists, has not expired,
// and the agent passes the access check.
func (r *Registry) GetTool(name, agentID string) (any, bool) {
	handle, _, err := r.Resolve(name, agentID)
	if err != nil {
		return nil, false
	}
	return handle, true
}

// Resolve looks up the tool for an agent and resolves its effective
// policy. It returns ErrUnknownTool, ErrToolExpired, or ErrAccessDenied
// when the tool cannot be used; the policy may be nil when no tier
// defines one.
func (r *Registry) Resolve(name, agentID string) (any, governance.Policy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.tools[name]
	if !ok {
		return nil, nil, ErrUnknownTool
	}
	if r.expiredLocked(entry) {
		return nil, nil, ErrToolExpired
	}
	if !r.accessibleLocked(entry, agentID) {
		return nil, nil, ErrAccessDenied
	}
	return entry.spec.Handle, r.policyLocked(entry, agentID), nil
}

// PolicyForTool resolves the effective policy for (tool, agent) without
// the access check. It returns nil when the tool is unknown, expired, or
// no tier defines a policy.
func (r *Registry) PolicyForTool(name, agentID string) governance.Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.tools[name]
	if !ok || r.expiredLocked(entry) {
		return nil
	}
	return r.policyLocked(entry, agentID)
}

// ListToolsForAgent returns the sorted names of all tools the agent may
// access right now.
func (r *Registry) ListToolsForAgent(agentID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for name, entry := range r.tools {
		if r.expiredLocked(entry) {
			continue
		}
		if r.accessibleLocked(entry, agentID) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Expired reports whether the named tool exists but has passed its
// expiry.
func (r *Registry) Expired(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.tools[name]
	return ok && r.expiredLocked(entry)
}

func (r *Registry) expiredLocked(entry *toolEntry) bool {
	exp := entry.spec.ExpiresAt
	return !exp.IsZero() && !r.now().Before(exp)
}

// accessibleLocked applies the access check: a tool with neither agent
// nor group restrictions is public; otherwise the agent must be listed
// or belong to a listed group.
func (r *Registry) accessibleLocked(entry *toolEntry, agentID string) bool {
	if len(entry.allowedAgents) == 0 && len(entry.allowedGroups) == 0 {
		return true
	}
	if _, ok := entry.allowedAgents[agentID]; ok {
		return true
	}
	for groupName := range entry.allowedGroups {
		if g, ok := r.groups[groupName]; ok {
			if _, member := g.members[agentID]; member {
				return true
			}
		}
	}
	return false
}

// policyLocked resolves tool policy, then agent policy, then group
// policies in group creation order.
func (r *Registry) policyLocked(entry *toolEntry, agentID string) governance.Policy {
	if entry.spec.Policy != nil {
		return entry.spec.Policy
	}
	if pol, ok := r.agentPolicies[agentID]; ok {
		return pol
	}

	var groupPolicies []governance.Policy
	for _, name := range r.groupOrder {
		g := r.groups[name]
		if g.policy == nil {
			continue
		}
		if _, member := g.members[agentID]; member {
			groupPolicies = append(groupPolicies, g.policy)
		}
	}
	if len(groupPolicies) == 0 {
		return nil
	}
	if len(groupPolicies) == 1 {
		return groupPolicies[0]
	}

	// All rule-based: concatenate in group creation order so every
	// group's rules participate. Otherwise the first non-nil wins.
	ruleBased := make([]*policy.RuleBased, 0, len(groupPolicies))
	for _, pol := range groupPolicies {
		rb, ok := pol.(*policy.RuleBased)
		if !ok {
			return groupPolicies[0]
		}
		ruleBased = append(ruleBased, rb)
	}
	return policy.Concat(ruleBased...)
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}
