package util

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/hupe1980/agentlab/core"
	"github.com/kaptinlin/jsonrepair"
)

// SchemaFor infers a JSON schema from a tagged Go type. Field descriptions come
// from `jsonschema:"..."` tags; fields without omitempty are required.
func SchemaFor[T any]() (*jsonschema.Schema, error) {
	s, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, fmt.Errorf("infer schema for %T: %w", *new(T), err)
	}
	return s, nil
}

// Resolve prepares a schema for validation. A nil schema resolves to nil.
func Resolve(s *jsonschema.Schema) (*jsonschema.Resolved, error) {
	if s == nil {
		return nil, nil
	}
	return s.Resolve(nil)
}

// ValidateArgs checks args against a resolved schema and converts any failure
// into a *core.ValidationError. A nil schema accepts everything.
func ValidateArgs(field string, rs *jsonschema.Resolved, args map[string]any) error {
	if rs == nil {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}
	// The validator expects plain JSON values, so normalize typed Go values first.
	var instance map[string]any
	if err := Convert(args, &instance); err != nil {
		return core.NewValidationError(field, args, "arguments are not valid JSON: %v", err)
	}
	if err := rs.Validate(instance); err != nil {
		return core.NewValidationError(field, args, "%s", err.Error())
	}
	return nil
}

// DecodeArgs parses a model supplied argument string. Syntax errors are
// repaired once before giving up; models regularly emit truncated or single
// quoted JSON.
func DecodeArgs(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	err := json.Unmarshal([]byte(raw), &args)
	if err == nil {
		if args == nil {
			args = map[string]any{}
		}
		return args, nil
	}
	var syntaxErr *json.SyntaxError
	if !errors.As(err, &syntaxErr) {
		return nil, fmt.Errorf("decode tool arguments: %w", err)
	}
	fixed, rerr := jsonrepair.JSONRepair(raw)
	if rerr != nil {
		return nil, fmt.Errorf("decode tool arguments: %w", err)
	}
	if err := json.Unmarshal([]byte(fixed), &args); err != nil {
		return nil, fmt.Errorf("decode repaired tool arguments: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// Convert copies in into out through a JSON round trip.
func Convert(in any, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
