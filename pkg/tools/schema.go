package tools

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// jsonSchemaTypes is the closed set of admissible parameter types.
// The builder refuses anything outside it, so malformed definitions
// (like a "list" type) cannot reach the wire.
var jsonSchemaTypes = map[string]bool{
	"string":  true,
	"integer": true,
	"number":  true,
	"boolean": true,
	"array":   true,
	"object":  true,
	"null":    true,
}

// BuildSchema renders a tool's parameters as a JSON-schema object
// with an explicit required list.
func BuildSchema(params []ToolParameter) (map[string]any, error) {
	properties := make(map[string]any, len(params))
	var required []string

	for _, p := range params {
		if p.Name == "" {
			return nil, fmt.Errorf("parameter name cannot be empty")
		}
		if !jsonSchemaTypes[p.Type] {
			return nil, fmt.Errorf("parameter %q: invalid JSON schema type %q", p.Name, p.Type)
		}

		prop := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		if p.Type == "array" {
			prop["items"] = map[string]any{"type": "string"}
		}
		properties[p.Name] = prop

		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema, nil
}

// CompileSchema turns the built schema into a validator.
func CompileSchema(schema map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	compiled, err := jsonschema.CompileString("tool.schema.json", string(raw))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return compiled, nil
}

// ValidateArgs checks decoded arguments against a compiled schema.
func ValidateArgs(schema *jsonschema.Schema, args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}
	// The validator expects decoded-JSON value types, so numeric Go
	// values are widened to float64.
	normalized := make(map[string]any, len(args))
	for k, v := range args {
		switch n := v.(type) {
		case int:
			normalized[k] = float64(n)
		case int64:
			normalized[k] = float64(n)
		case float32:
			normalized[k] = float64(n)
		default:
			normalized[k] = v
		}
	}
	if err := schema.Validate(any(normalized)); err != nil {
		return fmt.Errorf("arguments violate schema: %w", err)
	}
	return nil
}
