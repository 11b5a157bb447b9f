// Package logging provides a minimal logging interface and adapters for agentlab.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the registry, agent loop and context builder use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging, built via New(cfg)
//   - NoOpLogger for silent operation (testing, minimal setups)
//   - LogToolCall / LogLLMCall / LogLoopExecution helpers with shared keys
//
// Usage:
//
//	logger := logging.New(&logging.Config{Level: logging.LogLevelDebug, Format: "json"})
//	loop := agent.New(registry, llm, func(o *agent.Options) { o.Logger = logger })
package logging
