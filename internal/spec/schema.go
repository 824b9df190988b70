package spec

import (
	"bytes"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/vyrodovalexey/msgxform/internal/message"
)

// Schema is a compiled JSON Schema (draft 2020-12).
type Schema struct {
	compiled *jsonschema.Schema
	raw      []byte
}

// CompileSchema compiles a schema document decoded from YAML or JSON.
// name only labels the resource in error messages.
func CompileSchema(name string, doc any) (*Schema, error) {
	raw, err := message.EncodeJSON(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}

	url := "mem://" + name + ".json"
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, err
	}
	return &Schema{compiled: compiled, raw: raw}, nil
}

// Validate checks a decoded JSON value against the schema.
func (s *Schema) Validate(v any) error {
	return s.compiled.Validate(v)
}

// JSON returns the schema document.
func (s *Schema) JSON() []byte {
	return bytes.Clone(s.raw)
}
