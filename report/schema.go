package report

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/kaptinlin/jsonschema"
)

//go:embed schema/verification_report.schema.json
var schemaJSON []byte

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true
		compiledSchema, schemaErr = compiler.Compile(schemaJSON)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("compile report schema: %w", schemaErr)
		}
	})
	return compiledSchema, schemaErr
}

// Validate checks serialized report JSON against the embedded schema.
func Validate(data []byte) error {
	schema, err := loadSchema()
	if err != nil {
		return err
	}
	result := schema.ValidateJSON(data)
	if result.IsValid() {
		return nil
	}
	return fmt.Errorf("report schema validation failed: %v", result.Errors)
}

// Schema returns the raw JSON schema document.
func Schema() []byte {
	return append([]byte(nil), schemaJSON...)
}
