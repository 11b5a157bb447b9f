// Package core provides the foundational domain types shared by agentlab's
// packages:
//
//   - Message, ToolCall, ToolResult and AgentStep (the agent loop trace)
//   - MemorySnapshot and Document (what the memory and RAG collaborators return)
//   - the error taxonomy (validation, tool, provider and cancellation failures)
//   - ModelLimiter, which bounds model calls per run
//
// Implementation concerns (tool execution, persistence, model providers) live
// in sibling packages that depend on these small types.
package core
