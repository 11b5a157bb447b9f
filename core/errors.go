package core

import (
	"context"
	"errors"
	"fmt"
)

// ValidationError reports malformed input: bad entry parameters, an unknown
// tool name, or tool arguments that violate the tool's input schema.
type ValidationError struct {
	Field   string `json:"field"`
	Value   any    `json:"value"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field string, value any, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: fmt.Sprintf(format, args...)}
}

// DuplicateToolError is returned when registering a name that is already taken.
type DuplicateToolError struct {
	Name string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("tool '%s' is already registered", e.Name)
}

// ToolNotFoundError is returned when a tool name does not resolve.
type ToolNotFoundError struct {
	Name string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("tool '%s' not found", e.Name)
}

// ToolExecutionError wraps an error raised by a tool's Execute.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool '%s' failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// LLMProviderError wraps a failure of the language model collaborator with the
// loop iteration (1-based) during which it occurred.
type LLMProviderError struct {
	Iteration int
	Err       error
}

func (e *LLMProviderError) Error() string {
	return fmt.Sprintf("llm provider error at iteration %d: %v", e.Iteration, e.Err)
}

func (e *LLMProviderError) Unwrap() error { return e.Err }

// CancellationError is returned when the run context is cancelled or times out.
// It unwraps to context.Canceled or context.DeadlineExceeded.
type CancellationError struct {
	Iteration int
	Err       error
}

func (e *CancellationError) Error() string {
	return fmt.Sprintf("agent loop cancelled at iteration %d: %v", e.Iteration, e.Err)
}

func (e *CancellationError) Unwrap() error { return e.Err }

// IsCancellation reports whether err stems from context cancellation or deadline.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
