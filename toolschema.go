package forgeai

import (
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ToolSchemaValidator holds one compiled JSON-Schema per tool name, built
// once from a ChatRequest's ToolDefinitions using the same
// jsonschema.NewCompiler()/AddResource/Compile sequence as other
// JSON-Schema-validating services, generalized into a cache indexed by
// tool name so it can be built once per request and reused both by the
// Client (validating the request shape) and by forgeai/tools (optionally
// validating a model-returned ToolCall.Arguments before invoking the
// executor).
type ToolSchemaValidator struct {
	schemas map[string]*jsonschema.Schema
}

// CompileToolSchemas compiles every tool's input_schema. A tool with an
// empty InputSchema has no compiled entry and Validate always succeeds
// for it. It returns a Validation error naming the offending tool if the
// compiler rejects any schema.
func CompileToolSchemas(tools []ToolDefinition) (*ToolSchemaValidator, error) {
	v := &ToolSchemaValidator{schemas: make(map[string]*jsonschema.Schema, len(tools))}
	for _, t := range tools {
		if len(t.InputSchema) == 0 {
			continue
		}

		var doc any
		if err := json.Unmarshal(t.InputSchema, &doc); err != nil {
			return nil, NewValidationError("tool %q has an invalid input_schema: %v", t.Name, err)
		}

		resourceName := "forgeai-tool://" + t.Name
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(resourceName, doc); err != nil {
			return nil, NewValidationError("tool %q has an invalid input_schema: %v", t.Name, err)
		}
		compiled, err := compiler.Compile(resourceName)
		if err != nil {
			return nil, NewValidationError("tool %q has an invalid input_schema: %v", t.Name, err)
		}

		v.schemas[t.Name] = compiled
	}
	return v, nil
}

// Validate checks arguments against the compiled schema for the tool
// named name. It succeeds with no error if that tool has no schema (or
// was never declared) — schema validation is opt-in coverage, not a
// closed-world check of tool names.
func (v *ToolSchemaValidator) Validate(name string, arguments json.RawMessage) error {
	schema, ok := v.schemas[name]
	if !ok {
		return nil
	}

	var doc any
	if err := json.Unmarshal(arguments, &doc); err != nil {
		return NewProviderError("tool %q arguments are not valid JSON: %v", name, err)
	}
	if err := schema.Validate(doc); err != nil {
		return NewProviderError("tool %q arguments failed schema validation: %v", name, err)
	}
	return nil
}
