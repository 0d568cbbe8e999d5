package validation

import (
	"context"
	"fmt"

	"enacthq/enact/pkg/governance"
)

// ToolSchema declares the argument requirements for one tool.
type ToolSchema struct {
	// Required lists argument names that must be present.
	Required []string
}

// Schema verifies that requests carry every argument a tool declares as
// required. Tools without a declared schema are not checked.
type Schema struct {
	schemas map[string]ToolSchema
}

// NewSchema creates the validator over the given per-tool schemas.
func NewSchema(schemas map[string]ToolSchema) *Schema {
	if schemas == nil {
		schemas = make(map[string]ToolSchema)
	}
	return &Schema{schemas: schemas}
}

// Validate implements governance.Validator.
func (v *Schema) Validate(_ context.Context, req *governance.Request) governance.ValidationResult {
	schema, ok := v.schemas[req.ToolName]
	if !ok {
		return governance.ValidationResult{Valid: true}
	}

	for _, name := range schema.Required {
		if _, present := req.Arguments[name]; !present {
			return governance.ValidationResult{
				Valid:  false,
				Reason: fmt.Sprintf("missing required argument %q for tool %q", name, req.ToolName),
			}
		}
	}
	return governance.ValidationResult{Valid: true}
}
