// Package model defines the provider-agnostic LLM collaborator used by the
// agent loop.
//
// Core goals:
//   - Unify streaming + non-streaming generation behind a single interface
//   - Normalize tool call representation (core.ToolCall, core.ToolDescriptor)
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate deterministic tests (ScriptedModel) and offline runs (MockModel)
//
// Providers (OpenAI, Anthropic) implement the Model interface in sub packages
// so the agent loop remains decoupled from vendor SDKs. Collect drains a
// stream into the final response.
package model
