package action

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ParameterValidator checks a tool's action_parameters against its
// registered JSON Schema before dispatch, per spec.md §4.6 point 1.
type ParameterValidator interface {
	Validate(toolName string, params map[string]interface{}) error
}

// SchemaValidator compiles and caches one JSON Schema per tool name,
// wiring santhosh-tekuri/jsonschema/v6 (named in the domain-stack
// wiring) into the TOOL handler's parameter validation.
type SchemaValidator struct {
	mu       sync.Mutex
	compiled map[string]*jsonschema.Schema
}

// NewSchemaValidator constructs an empty SchemaValidator.
func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{compiled: make(map[string]*jsonschema.Schema)}
}

// RegisterSchema compiles and binds schemaJSON to toolName. Schemas are
// keyed by the exact tool name; registering the same name again replaces
// the earlier schema, and nothing distinguishes providers that advertise
// the same tool name.
func (v *SchemaValidator) RegisterSchema(toolName string, schemaJSON []byte) error {
	var schemaDoc any
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return fmt.Errorf("action: unmarshal schema for %s: %w", toolName, err)
	}

	resourceURL := toolName + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resourceURL, schemaDoc); err != nil {
		return fmt.Errorf("action: compiling schema for %s: %w", toolName, err)
	}
	schema, err := compiler.Compile(resourceURL)
	if err != nil {
		return fmt.Errorf("action: compiling schema for %s: %w", toolName, err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.compiled[toolName] = schema
	return nil
}

// Validate runs the tool's compiled schema against params. Tools with no
// registered schema pass unconditionally (not every tool requires
// structured parameter validation).
func (v *SchemaValidator) Validate(toolName string, params map[string]interface{}) error {
	v.mu.Lock()
	schema, ok := v.compiled[toolName]
	v.mu.Unlock()
	if !ok {
		return nil
	}

	// Round-trip through JSON so jsonschema/v6 sees the same decoded shape
	// it would from a wire payload, matching the
	// unmarshal-then-validate pattern.
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}

	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("action: parameter validation failed for tool %s: %w", toolName, err)
	}
	return nil
}
