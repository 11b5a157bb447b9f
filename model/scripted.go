package model

import (
	"context"
	"sync"

	"github.com/hupe1980/agentlab/core"
)

// Turn produces one scripted model reply for a request.
type Turn func(ctx context.Context, req Request) (*Response, error)

// TextTurn replies with a final answer.
func TextTurn(text string) Turn {
	return func(context.Context, Request) (*Response, error) {
		return &Response{Content: text, FinishReason: "stop"}, nil
	}
}

// ToolCallTurn replies with the given tool calls and no text.
func ToolCallTurn(calls ...core.ToolCall) Turn {
	return func(context.Context, Request) (*Response, error) {
		cp := make([]core.ToolCall, len(calls))
		copy(cp, calls)
		return &Response{ToolCalls: cp, FinishReason: "tool_calls"}, nil
	}
}

// ErrorTurn fails with err.
func ErrorTurn(err error) Turn {
	return func(context.Context, Request) (*Response, error) { return nil, err }
}

// ScriptedModel replays a fixed sequence of turns and records every request.
// Once the script is exhausted the last turn repeats.
type ScriptedModel struct {
	mu       sync.Mutex
	turns    []Turn
	requests []Request
}

// NewScriptedModel returns a model that answers with turns in order.
func NewScriptedModel(turns ...Turn) *ScriptedModel {
	return &ScriptedModel{turns: turns}
}

// Generate implements Model.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 1)
	errCh := make(chan error, 1)

	m.mu.Lock()
	idx := len(m.requests)
	m.requests = append(m.requests, req)
	var turn Turn
	if n := len(m.turns); n > 0 {
		turn = m.turns[min(idx, n-1)]
	}
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)
		if err := ctx.Err(); err != nil {
			errCh <- err
			return
		}
		if turn == nil {
			errCh <- ErrNoResponse
			return
		}
		resp, err := turn(ctx, req)
		if err != nil {
			errCh <- err
			return
		}
		respCh <- *resp
	}()

	return respCh, errCh
}

// Info implements Model.
func (m *ScriptedModel) Info() Info {
	return Info{Name: "scripted", Provider: "mock", SupportsTools: true}
}

// Requests returns a copy of every request received so far.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Calls returns the number of Generate invocations.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}
