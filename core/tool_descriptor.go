package core

import (
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
)

// ToolDescriptor exposes a tool's identity and schemas for model binding and
// external introspection. OutputSchema may be nil.
type ToolDescriptor struct {
	Name         string             `json:"name"`
	Description  string             `json:"description"`
	InputSchema  *jsonschema.Schema `json:"input_schema"`
	OutputSchema *jsonschema.Schema `json:"output_schema,omitempty"`
}

// Parameters returns the input schema as a generic JSON object, the shape
// provider SDKs expect for function parameters.
func (d ToolDescriptor) Parameters() map[string]any {
	return schemaMap(d.InputSchema)
}

func schemaMap(s *jsonschema.Schema) map[string]any {
	if s == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}
