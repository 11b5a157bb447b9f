// Package agent implements the tool-calling loop that drives one
// conversational turn.
//
// A Loop repeatedly calls the model with the running conversation and the
// bound tool descriptors. When the model requests tools, the calls of that
// turn run concurrently through a bounded executor and their results are fed
// back in call order. The loop ends on the first turn without tool calls, or
// after MaxIterations tool-bearing turns with one extra call that has no
// tools bound.
//
// Tool failures are data: they become ToolResult{Success: false} and the
// model sees them on the next turn. Only entry validation, model errors and
// context cancellation end a run with an error.
//
//	loop := agent.New(registry, llm, func(o *agent.Options) {
//		o.MaxParallelTools = 4
//		o.Logger = logger
//	})
//	res, err := loop.Run(ctx, agent.Request{Messages: msgs})
package agent
