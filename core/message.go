package core

import (
	"time"
)

// Role identifies the author of a Message.
type Role string

const (
	// RoleUser marks caller supplied input.
	RoleUser Role = "user"
	// RoleAssistant marks model output.
	RoleAssistant Role = "assistant"
	// RoleSystem marks instructions and assembled context.
	RoleSystem Role = "system"
	// RoleTool marks a tool-result message synthesized by the agent loop.
	// It is never accepted as caller input.
	RoleTool Role = "tool"
)

// IsEntryRole reports whether r may appear in a caller supplied conversation.
func (r Role) IsEntryRole() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

// Message is one immutable turn in a conversation.
//
// Assistant messages that requested tools carry ToolCalls; tool messages carry
// the ToolCallID and tool Name they answer.
type Message struct {
	Role       Role           `json:"role"`
	Content    string         `json:"content"`
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
}

// NewMessage creates a message stamped with the current time.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content, Timestamp: time.Now()}
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Args      map[string]any `json:"args"`
	Timestamp time.Time      `json:"timestamp"`
}

// ToolResult is the outcome of exactly one ToolCall.
type ToolResult struct {
	ToolCallID string         `json:"tool_call_id"`
	ToolName   string         `json:"tool_name"`
	Result     map[string]any `json:"result,omitempty"`
	Success    bool           `json:"success"`
	Error      string         `json:"error,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Action distinguishes the two kinds of AgentStep.
type Action string

const (
	// ActionToolCall records one executed tool call and its result.
	ActionToolCall Action = "tool_call"
	// ActionFinalAnswer records the terminating model turn.
	ActionFinalAnswer Action = "final_answer"
)

// AgentStep is one entry of the execution trace returned by the agent loop.
// ToolCall and ToolResult are set iff Action is ActionToolCall.
type AgentStep struct {
	StepNumber int         `json:"step_number"`
	Action     Action      `json:"action"`
	ToolCall   *ToolCall   `json:"tool_call,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
	Reasoning  string      `json:"reasoning,omitempty"`
}
