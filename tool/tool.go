// Package tool implements the function / tool calling subsystem that lets the
// agent loop invoke structured capabilities (APIs, computations, side effects)
// with schema validated arguments, consistent error handling and rich metadata
// for LLM guidance.
package tool

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/hupe1980/agentlab/core"
)

// Tool defines the interface for extending the agent with external functions.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Declare a JSON schema for their input (and optionally their output)
//   - Be all-or-nothing: return an error instead of partial progress
//   - Be safe for concurrent use; sibling calls may run in parallel
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case recommended).
	Name() string

	// Description returns a human-readable description provided to the LLM.
	Description() string

	// InputSchema describes the accepted arguments.
	InputSchema() *jsonschema.Schema

	// OutputSchema describes the result map. It may be nil.
	OutputSchema() *jsonschema.Schema

	// Execute runs the tool. Arguments have already been validated against
	// InputSchema when called through a Registry.
	Execute(ctx context.Context, args map[string]any) (map[string]any, error)
}

// Error codes carried by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
)

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Unwrap exposes a wrapped error stored in Details.
func (e *ToolError) Unwrap() error {
	if err, ok := e.Details.(error); ok {
		return err
	}
	return nil
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// Describe builds the descriptor of t.
func Describe(t Tool) core.ToolDescriptor {
	return core.ToolDescriptor{
		Name:         t.Name(),
		Description:  t.Description(),
		InputSchema:  t.InputSchema(),
		OutputSchema: t.OutputSchema(),
	}
}
