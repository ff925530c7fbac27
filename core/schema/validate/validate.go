// Package validate compiles the embedded artifact schemas once and checks
// raw artifact bytes against them. Structural validation is deliberately
// separate from the omission rules: a document can be structurally valid and
// still be missing required provenance fields.
package validate

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/kaptinlin/jsonschema"
)

//go:embed schemas/evidence_pointer.v1.schema.json
var evidencePointerSchemaJSON []byte

//go:embed schemas/cfic_certificate.v1.schema.json
var certificateSchemaJSON []byte

var (
	compileOnce       sync.Once
	compileErr        error
	evidenceSchema    *jsonschema.Schema
	certificateSchema *jsonschema.Schema
)

func compileSchemas() {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	evidenceSchema, compileErr = compiler.Compile(evidencePointerSchemaJSON)
	if compileErr != nil {
		compileErr = fmt.Errorf("compile evidence pointer schema: %w", compileErr)
		return
	}
	certificateSchema, compileErr = compiler.Compile(certificateSchemaJSON)
	if compileErr != nil {
		compileErr = fmt.Errorf("compile certificate schema: %w", compileErr)
	}
}

// EvidencePointer checks raw evidence declaration bytes against the v1 schema.
func EvidencePointer(data []byte) error {
	compileOnce.Do(compileSchemas)
	if compileErr != nil {
		return compileErr
	}
	return validateJSON(evidenceSchema, data)
}

// Certificate checks raw CFIC certificate bytes against the v1 schema.
func Certificate(data []byte) error {
	compileOnce.Do(compileSchemas)
	if compileErr != nil {
		return compileErr
	}
	return validateJSON(certificateSchema, data)
}

func validateJSON(schema *jsonschema.Schema, data []byte) error {
	result := schema.ValidateJSON(data)
	if result.IsValid() {
		return nil
	}
	return fmt.Errorf("schema validation failed: %v", result.Errors)
}
