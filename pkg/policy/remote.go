package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"enacthq/enact/pkg/governance"
)

// RemoteConfig configures a Remote policy.
type RemoteConfig struct {
	// Endpoint is the decision service base URL.
	Endpoint string

	// Path is appended to Endpoint. Default: "/v1/data/enact/allow".
	Path string

	// Headers are added to every request.
	Headers map[string]string

	// Timeout bounds the round trip. Default: 5 seconds.
	Timeout time.Duration

	// DefaultAllow applies when the service is unreachable or returns
	// an unusable response. False fails closed.
	DefaultAllow bool
}

// Remote delegates decisions to an external HTTP decision service.
//
// The request is POSTed as {"input": {...request fields...}}. The
// service answers either {"result": bool} or
// {"allow": bool, "reason": "..."}. Any transport failure, non-2xx
// status, or malformed body maps to the configured default with reason
// "decision service unavailable".
type Remote struct {
	config RemoteConfig
	client *http.Client
	logger *slog.Logger
}

// remoteResponse accepts both response shapes the service may return.
type remoteResponse struct {
	Result *bool  `json:"result"`
	Allow  *bool  `json:"allow"`
	Reason string `json:"reason"`
}

// NewRemote creates the delegating policy.
func NewRemote(config RemoteConfig) *Remote {
	if config.Path == "" {
		config.Path = "/v1/data/enact/allow"
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	return &Remote{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: slog.Default().With("component", "policy.remote"),
	}
}

// Evaluate implements governance.Policy by consulting the remote
// service.
func (p *Remote) Evaluate(ctx context.Context, req *governance.Request) governance.Decision {
	body, err := json.Marshal(map[string]any{"input": req})
	if err != nil {
		return p.unavailable("marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Endpoint+p.config.Path, bytes.NewReader(body))
	if err != nil {
		return p.unavailable("build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range p.config.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return p.unavailable("post", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		p.logger.Warn("decision service returned non-2xx",
			"status", resp.StatusCode,
			"endpoint", p.config.Endpoint,
		)
		return governance.Decision{Allow: p.config.DefaultAllow, Reason: "decision service unavailable"}
	}

	var parsed remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return p.unavailable("decode response", err)
	}

	switch {
	case parsed.Allow != nil:
		reason := parsed.Reason
		if reason == "" {
			reason = "decision service verdict"
		}
		return governance.Decision{Allow: *parsed.Allow, Reason: reason}
	case parsed.Result != nil:
		return governance.Decision{Allow: *parsed.Result, Reason: "decision service verdict"}
	default:
		p.logger.Warn("decision service response missing result", "endpoint", p.config.Endpoint)
		return governance.Decision{Allow: p.config.DefaultAllow, Reason: "decision service unavailable"}
	}
}

func (p *Remote) unavailable(op string, err error) governance.Decision {
	p.logger.Warn("decision service unavailable",
		"op", op,
		"endpoint", p.config.Endpoint,
		"error", err,
	)
	return governance.Decision{Allow: p.config.DefaultAllow, Reason: "decision service unavailable"}
}
