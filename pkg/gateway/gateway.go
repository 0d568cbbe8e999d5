// Package gateway binds the governance engine to the tool registry.
//
// The engine deliberately does not hold the registry: it evaluates a
// policy resolved once per request. The gateway is that caller-side
// composition — it resolves the tool, applies the registry's access and
// expiry checks, and passes the resolved policy to the engine. Registry
// denials (unknown, expired, access) go through the same audit fan-out
// as pipeline decisions.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"enacthq/enact/pkg/governance"
	"enacthq/enact/pkg/registry"
)

// Gateway authorizes tool calls end to end.
type Gateway struct {
	engine   *governance.Engine
	registry *registry.Registry
	logger   *slog.Logger
}

// New creates a gateway over the given engine and registry.
func New(engine *governance.Engine, reg *registry.Registry) *Gateway {
	return &Gateway{
		engine:   engine,
		registry: reg,
		logger:   slog.Default().With("component", "gateway"),
	}
}

// Authorize resolves the request's tool and policy and runs the
// governance pipeline. Registry-level failures become audited denials:
//
//   - unknown tool  -> "unknown tool"
//   - expired tool  -> "tool expired"
//   - access denied -> "access denied"
func (g *Gateway) Authorize(ctx context.Context, req *governance.Request) governance.Decision {
	start := time.Now()

	_, pol, err := g.registry.Resolve(req.ToolName, req.AgentID)
	if err != nil {
		decision := governance.Deny(registryReason(err))
		g.engine.RecordDecision(ctx, req, decision, governance.SourceRegistry, time.Since(start))
		return decision
	}

	return g.engine.Evaluate(ctx, req, pol)
}

// Handle returns the tool's opaque handle for an agent that has just
// been allowed to call it.
func (g *Gateway) Handle(tool, agentID string) (any, bool) {
	return g.registry.GetTool(tool, agentID)
}

// RecordOutcome forwards the executed call's result to the breaker.
func (g *Gateway) RecordOutcome(tool string, ok bool) {
	g.engine.RecordOutcome(tool, ok)
}

func registryReason(err error) string {
	switch {
	case errors.Is(err, registry.ErrToolExpired):
		return "tool expired"
	case errors.Is(err, registry.ErrAccessDenied):
		return "access denied"
	default:
		return "unknown tool"
	}
}
