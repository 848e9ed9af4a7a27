package config

import (
	"embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schemas/pipeline.v1.schema.json
var schemaFS embed.FS

const schemaPath = "schemas/pipeline.v1.schema.json"

// SchemaError lists every JSON schema violation found in a pipeline file.
type SchemaError struct {
	Problems []SchemaProblem
}

// SchemaProblem is a single schema violation.
type SchemaProblem struct {
	Field       string
	Type        string
	Description string
}

func (e *SchemaError) Error() string {
	lines := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		lines = append(lines, fmt.Sprintf("%s: %s", p.Field, p.Description))
	}
	return fmt.Sprintf("pipeline file does not match schema: %s", strings.Join(lines, "; "))
}

func (e *SchemaError) Unwrap() error {
	return ErrInvalidConfig
}

// Schema returns the embedded JSON schema for pipeline files.
func Schema() ([]byte, error) {
	return schemaFS.ReadFile(schemaPath)
}

// ValidateSchema checks raw pipeline YAML against the embedded JSON schema.
func ValidateSchema(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: failed to parse: %v", ErrInvalidConfig, err)
	}
	if doc == nil {
		return fmt.Errorf("%w: pipeline file is empty", ErrInvalidConfig)
	}

	schemaBytes, err := Schema()
	if err != nil {
		return fmt.Errorf("failed to load JSON schema: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaBytes),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("%w: validation error: %v", ErrInvalidConfig, err)
	}

	if result.Valid() {
		return nil
	}

	schemaErr := &SchemaError{}
	for _, desc := range result.Errors() {
		schemaErr.Problems = append(schemaErr.Problems, SchemaProblem{
			Field:       desc.Field(),
			Type:        desc.Type(),
			Description: desc.Description(),
		})
	}
	return schemaErr
}
