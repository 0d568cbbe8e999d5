// Package validation implements the intent validator pipeline.
//
// Validators check a request before any policy runs: is the stated
// justification adequate, are the declared arguments present, does a
// custom invariant hold. The pipeline runs validators in order and
// short-circuits on the first invalid result.
package validation

import (
	"context"

	"enacthq/enact/pkg/governance"
)

// Pipeline composes validators into a single governance.Validator.
type Pipeline struct {
	validators []governance.Validator
}

// NewPipeline creates a pipeline over the given validators, run in order.
func NewPipeline(validators ...governance.Validator) *Pipeline {
	return &Pipeline{validators: validators}
}

// Add appends a validator to the end of the pipeline.
func (p *Pipeline) Add(v governance.Validator) {
	p.validators = append(p.validators, v)
}

// Validate runs each validator in order, returning the first invalid
// result. An empty pipeline accepts everything.
func (p *Pipeline) Validate(ctx context.Context, req *governance.Request) governance.ValidationResult {
	for _, v := range p.validators {
		res := v.Validate(ctx, req)
		if !res.Valid {
			return res
		}
	}
	return governance.ValidationResult{Valid: true}
}

// Func adapts a plain function into a governance.Validator.
type Func func(ctx context.Context, req *governance.Request) governance.ValidationResult

// Validate implements governance.Validator.
func (f Func) Validate(ctx context.Context, req *governance.Request) governance.ValidationResult {
	return f(ctx, req)
}
