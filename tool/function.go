package tool

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/hupe1980/agentlab/internal/util"
	"github.com/hupe1980/agentlab/logging"
)

// FunctionOptions configures a FunctionTool.
type FunctionOptions struct {
	// Logger receives tool.call.* events. Defaults to a no-op logger.
	Logger logging.Logger
	// InputSchema overrides the schema inferred from In. Useful for adding
	// enums or defaults the struct tags cannot express.
	InputSchema *jsonschema.Schema
	// OutputSchema overrides the schema inferred from Out.
	OutputSchema *jsonschema.Schema
}

// FunctionTool is a generic adapter that exposes a typed Go function as a Tool.
//
// Responsibilities:
//   - Infers the input schema from In (and the output schema from Out when Out
//     is a struct) using jsonschema struct tags
//   - Validates arguments against the input schema before decoding them into In
//   - Encodes the returned Out into the result map
//   - Normalizes error handling so callers receive *ToolError with consistent codes:
//     VALIDATION_ERROR  -> schema / argument mismatch
//     EXECUTION_ERROR   -> underlying function returned an error (non-ToolError)
//     (custom codes preserved if the function returns *ToolError directly)
//
// A FunctionTool has no mutable state after construction and is safe for
// concurrent use by multiple goroutines.
type FunctionTool[In, Out any] struct {
	name        string
	description string
	input       *jsonschema.Schema
	output      *jsonschema.Schema
	resolved    *jsonschema.Resolved
	fn          func(ctx context.Context, in In) (Out, error)
	logger      logging.Logger
}

// NewFunctionTool constructs a FunctionTool from a typed function.
//
// Example:
//
//	type SumArgs struct {
//	  A float64 `json:"a" jsonschema:"first addend"`
//	  B float64 `json:"b" jsonschema:"second addend"`
//	}
//	type SumResult struct {
//	  Sum float64 `json:"sum"`
//	}
//
//	sumTool, err := tool.NewFunctionTool("calculate_sum", "Calculate the sum of two numbers",
//	  func(ctx context.Context, in SumArgs) (SumResult, error) {
//	    return SumResult{Sum: in.A + in.B}, nil
//	  },
//	)
func NewFunctionTool[In, Out any](
	name, description string,
	fn func(ctx context.Context, in In) (Out, error),
	optFns ...func(o *FunctionOptions),
) (*FunctionTool[In, Out], error) {
	opts := FunctionOptions{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if name == "" {
		return nil, errors.New("tool name must not be empty")
	}

	input := opts.InputSchema
	if input == nil {
		s, err := util.SchemaFor[In]()
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", name, err)
		}
		input = s
	}

	output := opts.OutputSchema
	if output == nil && isStruct(reflect.TypeFor[Out]()) {
		s, err := util.SchemaFor[Out]()
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", name, err)
		}
		output = s
	}

	resolved, err := util.Resolve(input)
	if err != nil {
		return nil, fmt.Errorf("tool %s: resolve input schema: %w", name, err)
	}

	return &FunctionTool[In, Out]{
		name:        name,
		description: description,
		input:       input,
		output:      output,
		resolved:    resolved,
		fn:          fn,
		logger:      opts.Logger,
	}, nil
}

// MustNewFunctionTool is like NewFunctionTool but panics on error. Intended
// for package level tool declarations.
func MustNewFunctionTool[In, Out any](
	name, description string,
	fn func(ctx context.Context, in In) (Out, error),
	optFns ...func(o *FunctionOptions),
) *FunctionTool[In, Out] {
	t, err := NewFunctionTool(name, description, fn, optFns...)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the unique tool name used in function call declarations and routing.
func (t *FunctionTool[In, Out]) Name() string { return t.name }

// Description returns the short natural language description exposed to models.
func (t *FunctionTool[In, Out]) Description() string { return t.description }

// InputSchema returns the JSON schema describing expected arguments.
func (t *FunctionTool[In, Out]) InputSchema() *jsonschema.Schema { return t.input }

// OutputSchema returns the JSON schema of the result or nil.
func (t *FunctionTool[In, Out]) OutputSchema() *jsonschema.Schema { return t.output }

// Execute validates the provided args against the declared schema then invokes
// the underlying function. Validation or execution failures are wrapped (or
// passed through) as *ToolError for uniform downstream handling.
//
// Logging Fields:
//
//	tool: tool name
//	duration_ms: execution time in milliseconds
func (t *FunctionTool[In, Out]) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	start := time.Now()

	t.logger.Debug("tool.call.start", "tool", t.name)

	if err := util.ValidateArgs(t.name, t.resolved, args); err != nil {
		t.logger.Warn("tool.call.validation_failed", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}

	var in In
	if err := util.Convert(args, &in); err != nil {
		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("decode arguments: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}

	out, err := t.fn(ctx, in)
	if err != nil {
		var toolErr *ToolError
		if errors.As(err, &toolErr) { // Already a ToolError -> just log and forward
			t.logger.Error("tool.call.error", "tool", t.name, "error", toolErr.Message)

			return nil, toolErr
		}

		t.logger.Error("tool.call.error", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: err.Error(),
			Code:    CodeExecution,
			Details: err,
		}
	}

	result, err := toResultMap(out)
	if err != nil {
		return nil, &ToolError{Tool: t.name, Message: err.Error(), Code: CodeExecution, Details: err}
	}

	t.logger.Info("tool.call.success", "tool", t.name, "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}

// toResultMap encodes v as a JSON object. Non-object values are wrapped under
// the "result" key.
func toResultMap(v any) (map[string]any, error) {
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}
	var decoded any
	if err := util.Convert(v, &decoded); err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	if m, ok := decoded.(map[string]any); ok {
		return m, nil
	}
	return map[string]any{"result": decoded}, nil
}

func isStruct(t reflect.Type) bool {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t != nil && t.Kind() == reflect.Struct
}
