package validate

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/tjfontaine/roots-api/internal/apierr"
)

// Schema is a compiled JSON Schema for a request body.
type Schema struct {
	name     string
	compiled *jsonschema.Schema
}

// CompileSchema compiles source. The name identifies the schema in errors.
func CompileSchema(name, source string) (*Schema, error) {
	compiled, err := jsonschema.CompileString(name, source)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return &Schema{name: name, compiled: compiled}, nil
}

// MustCompileSchema is CompileSchema for package-level schemas.
func MustCompileSchema(name, source string) *Schema {
	s, err := CompileSchema(name, source)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the schema identifier.
func (s *Schema) Name() string {
	return s.name
}

// Validate checks body against the schema. Any failure, including a body that
// is not JSON, is returned as an apierr.KindSchema error.
func (s *Schema) Validate(body json.RawMessage) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return apierr.Schema(fmt.Errorf("%s: %w", s.name, err))
	}
	if err := s.compiled.Validate(doc); err != nil {
		return apierr.Schema(err)
	}
	return nil
}
