package handler

import (
	_ "embed"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed start_request.schema.json
var startRequestSchema []byte

// SchemaValidator validates request bodies against a JSON schema.
type SchemaValidator struct {
	schema *gojsonschema.Schema
}

// NewSchemaValidator compiles schema.
func NewSchemaValidator(schema []byte) (*SchemaValidator, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("handler: parse schema: %w", err)
	}
	return &SchemaValidator{schema: compiled}, nil
}

// ValidateBytes returns the first schema violation of raw, if any. Empty
// input is accepted.
func (v *SchemaValidator) ValidateBytes(raw []byte) error {
	if v == nil || v.schema == nil || len(raw) == 0 {
		return nil
	}
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}
	if len(result.Errors()) == 0 {
		return fmt.Errorf("schema validation failed")
	}
	return fmt.Errorf("schema validation failed: %s", result.Errors()[0])
}

func mustSchemaValidator(schema []byte) *SchemaValidator {
	v, err := NewSchemaValidator(schema)
	if err != nil {
		panic(err)
	}
	return v
}
