package schema

import (
	_ "embed"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed pipeline.schema.json
var pipelineSchemaJSON string

// Validator handles JSON schema validation of pipeline documents.
type Validator struct {
	pipelineSchema *jsonschema.Schema
}

// NewValidator compiles the embedded pipeline schema.
func NewValidator() (*Validator, error) {
	compiled, err := jsonschema.CompileString("pipeline.schema.json", pipelineSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to compile pipeline schema: %w", err)
	}
	return &Validator{pipelineSchema: compiled}, nil
}

// ValidatePipeline validates a decoded pipeline document against the schema.
func (v *Validator) ValidatePipeline(data interface{}) error {
	if err := v.pipelineSchema.Validate(data); err != nil {
		return fmt.Errorf("pipeline document failed validation: %w", err)
	}
	return nil
}
