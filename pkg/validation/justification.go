package validation

import (
	"context"
	"fmt"
	"strings"

	"enacthq/enact/pkg/governance"
)

// JustificationConfig configures the justification validator.
type JustificationConfig struct {
	// MinLength is the minimum justification length in characters.
	MinLength int

	// RequiredKeywords maps a tool name to keywords, at least one of
	// which must appear in the justification (case-insensitive
	// substring match). Tools without an entry have no keyword
	// requirement.
	RequiredKeywords map[string][]string
}

// Justification requires callers to state why they are invoking a tool.
type Justification struct {
	config JustificationConfig
}

// NewJustification creates the validator. A non-positive MinLength
// defaults to 10.
func NewJustification(config JustificationConfig) *Justification {
	if config.MinLength <= 0 {
		config.MinLength = 10
	}
	return &Justification{config: config}
}

// Validate implements governance.Validator.
func (v *Justification) Validate(_ context.Context, req *governance.Request) governance.ValidationResult {
	just := strings.TrimSpace(req.Justification())

	if len(just) < v.config.MinLength {
		return governance.ValidationResult{
			Valid:  false,
			Reason: fmt.Sprintf("justification must be at least %d characters", v.config.MinLength),
		}
	}

	keywords, ok := v.config.RequiredKeywords[req.ToolName]
	if !ok || len(keywords) == 0 {
		return governance.ValidationResult{Valid: true}
	}

	lower := strings.ToLower(just)
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return governance.ValidationResult{Valid: true}
		}
	}
	return governance.ValidationResult{
		Valid:  false,
		Reason: fmt.Sprintf("justification for tool %q must mention one of: %s", req.ToolName, strings.Join(keywords, ", ")),
	}
}
