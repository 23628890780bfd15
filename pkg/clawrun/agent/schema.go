// Package agent – schema.go validates named tool arguments against the
// spec-declared parameter schema before execution. Validation is advisory for
// tools without declared parameters.
package agent

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// DecodeJSONObject parses a JSON object into a generic map.
func DecodeJSONObject(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	return out, nil
}

// parameterSchema builds a JSON schema document from declared parameters.
func parameterSchema(params []ToolParameter) ([]byte, error) {
	properties := make(map[string]any, len(params))
	var required []string
	for _, p := range params {
		prop := map[string]any{}
		if p.Type != "" {
			prop["type"] = p.Type
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	doc := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return json.Marshal(doc)
}

// ValidateKwargs checks a tool use's named arguments against the spec's
// declared parameters. Tools without parameters accept anything. String
// values are coerced to the declared primitive type before validation so
// kwargs parsed from text grammars validate the same as native JSON calls.
func ValidateKwargs(spec *ToolSpec, tu *ToolUse) error {
	if spec == nil || len(spec.Parameters) == 0 {
		return nil
	}
	raw, err := parameterSchema(spec.Parameters)
	if err != nil {
		return err
	}
	schema, err := jsonschema.CompileString(spec.Name+".schema.json", string(raw))
	if err != nil {
		return fmt.Errorf("compile parameter schema for %s: %w", spec.Name, err)
	}

	value := make(map[string]any, len(tu.Kwargs))
	types := make(map[string]string, len(spec.Parameters))
	for _, p := range spec.Parameters {
		types[p.Name] = p.Type
	}
	for k, v := range tu.Kwargs {
		value[k] = coerceValue(v, types[k])
	}
	if err := schema.Validate(value); err != nil {
		return fmt.Errorf("invalid arguments for %s: %w", spec.Name, err)
	}
	return nil
}

// coerceValue converts a string kwarg to the declared primitive when it
// parses cleanly, leaving it untouched otherwise so validation reports the
// mismatch.
func coerceValue(v, declared string) any {
	switch declared {
	case "integer":
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	case "number":
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	case "boolean":
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return v
}
