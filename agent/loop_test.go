package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/agentlab/core"
	"github.com/hupe1980/agentlab/model"
	"github.com/hupe1980/agentlab/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Interface compliance (compile-time assertions)
var _ ToolSet = (*tool.Registry)(nil)

var fixedNow = time.Date(2025, time.December, 24, 15, 4, 5, 0, time.UTC)

func userMsg(text string) []core.Message {
	return []core.Message{core.NewMessage(core.RoleUser, text)}
}

func call(id, name string, args map[string]any) core.ToolCall {
	return core.ToolCall{ID: id, Name: name, Args: args}
}

func newRegistry(t *testing.T, tools ...tool.Tool) *tool.Registry {
	t.Helper()
	r := tool.NewRegistry()
	for _, tl := range tools {
		require.NoError(t, r.Register(tl))
	}
	return r
}

func dateTimeTool(t *testing.T) tool.Tool {
	t.Helper()
	dt, err := tool.NewDateTimeTool(func(o *tool.DateTimeOptions) { o.Now = func() time.Time { return fixedNow } })
	require.NoError(t, err)
	return dt
}

type echoArgs struct {
	Value string `json:"value"`
	Delay int    `json:"delay_ms,omitempty"`
}

type echoResult struct {
	Value string `json:"value"`
}

func echoTool(t *testing.T, name string, calls *int32) tool.Tool {
	t.Helper()
	et, err := tool.NewFunctionTool(name, "echoes its input after an optional delay",
		func(ctx context.Context, in echoArgs) (echoResult, error) {
			if calls != nil {
				atomic.AddInt32(calls, 1)
			}
			if in.Delay > 0 {
				select {
				case <-time.After(time.Duration(in.Delay) * time.Millisecond):
				case <-ctx.Done():
					return echoResult{}, ctx.Err()
				}
			}
			return echoResult{Value: in.Value}, nil
		},
	)
	require.NoError(t, err)
	return et
}

func failingTool(t *testing.T, name string, err error) tool.Tool {
	t.Helper()
	ft, ferr := tool.NewFunctionTool(name, "always fails",
		func(context.Context, map[string]any) (map[string]any, error) { return nil, err },
	)
	require.NoError(t, ferr)
	return ft
}

func panickingTool(t *testing.T, name string) tool.Tool {
	t.Helper()
	pt, err := tool.NewFunctionTool(name, "panics",
		func(context.Context, map[string]any) (map[string]any, error) { panic("kaboom") },
	)
	require.NoError(t, err)
	return pt
}

func newLoop(reg ToolSet, m model.Model, optFns ...func(o *Options)) *Loop {
	base := func(o *Options) {
		o.Now = func() time.Time { return fixedNow }
	}
	return New(reg, m, append([]func(o *Options){base}, optFns...)...)
}

func assertStepInvariants(t *testing.T, res *Result) {
	t.Helper()
	for i, s := range res.Steps {
		assert.Equal(t, i+1, s.StepNumber)
		if s.Action == core.ActionToolCall {
			require.NotNil(t, s.ToolCall)
			require.NotNil(t, s.ToolResult)
			assert.Equal(t, s.ToolCall.ID, s.ToolResult.ToolCallID)
			assert.Equal(t, s.ToolCall.Name, s.ToolResult.ToolName)
		}
	}
	require.NotEmpty(t, res.Steps)
	assert.Equal(t, core.ActionFinalAnswer, res.Steps[len(res.Steps)-1].Action)
	assert.Len(t, res.ToolResults, len(res.ToolCalls))
}

func TestRun_DirectAnswer(t *testing.T) {
	m := model.NewScriptedModel(model.TextTurn("Hello!"))
	loop := newLoop(newRegistry(t, dateTimeTool(t)), m)

	res, err := loop.Run(context.Background(), Request{Messages: userMsg("hi")})
	require.NoError(t, err)

	assert.Equal(t, "Hello!", res.ResponseText)
	require.Len(t, res.Steps, 1)
	assert.Equal(t, core.ActionFinalAnswer, res.Steps[0].Action)
	assert.Empty(t, res.ToolResults)
	assert.False(t, res.ToolsUsed())
	assert.Equal(t, 1, res.LLMCalls)
	assert.Equal(t, StateFinalAnswer, res.State)

	reqs := m.Requests()
	require.Len(t, reqs, 1)
	require.Len(t, reqs[0].Tools, 1)
	assert.Equal(t, tool.DateTimeToolName, reqs[0].Tools[0].Name)
	require.NotNil(t, reqs[0].Temperature)
	assert.Equal(t, DefaultTemperature, *reqs[0].Temperature)
	assert.Equal(t, DefaultMaxTokens, reqs[0].MaxTokens)
}

func TestRun_DateTimeToolThenAnswer(t *testing.T) {
	m := model.NewScriptedModel(
		model.ToolCallTurn(call("call_1", tool.DateTimeToolName, map[string]any{"format": "iso"})),
		model.TextTurn("Today is December 24, 2025."),
	)
	loop := newLoop(newRegistry(t, dateTimeTool(t)), m)

	res, err := loop.Run(context.Background(), Request{Messages: userMsg("What is the current date?")})
	require.NoError(t, err)
	assertStepInvariants(t, res)

	require.Len(t, res.Steps, 2)
	assert.Equal(t, core.ActionToolCall, res.Steps[0].Action)
	assert.Equal(t, core.ActionFinalAnswer, res.Steps[1].Action)
	require.Len(t, res.ToolResults, 1)
	assert.True(t, res.ToolResults[0].Success)
	assert.Equal(t, "2025-12-24T15:04:05Z", res.ToolResults[0].Result["datetime"])
	assert.Equal(t, "Today is December 24, 2025.", res.ResponseText)
	assert.Equal(t, 2, m.Calls())

	// The second model call sees the assistant tool-call turn and the tool result.
	second := m.Requests()[1].Messages
	require.Len(t, second, 3)
	assert.Equal(t, core.RoleAssistant, second[1].Role)
	require.Len(t, second[1].ToolCalls, 1)
	assert.Equal(t, "call_1", second[1].ToolCalls[0].ID)
	assert.Equal(t, core.RoleTool, second[2].Role)
	assert.Equal(t, "call_1", second[2].ToolCallID)
	assert.Equal(t, tool.DateTimeToolName, second[2].Name)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(second[2].Content), &payload))
	assert.Equal(t, true, payload["success"])
}

func TestRun_ToolErrorIsData(t *testing.T) {
	m := model.NewScriptedModel(
		model.ToolCallTurn(call("c1", "explode", nil)),
		model.TextTurn("Sorry, the tool failed."),
	)
	loop := newLoop(newRegistry(t, failingTool(t, "explode", errors.New("boom"))), m)

	res, err := loop.Run(context.Background(), Request{Messages: userMsg("do it")})
	require.NoError(t, err)
	assertStepInvariants(t, res)

	require.Len(t, res.ToolResults, 1)
	assert.False(t, res.ToolResults[0].Success)
	assert.Contains(t, res.ToolResults[0].Error, "boom")
	assert.Equal(t, "Sorry, the tool failed.", res.ResponseText)

	toolMsg := m.Requests()[1].Messages[2]
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(toolMsg.Content), &payload))
	assert.Contains(t, payload["error"], "boom")
}

func TestRun_UnknownToolNameFailsBeforeModelCall(t *testing.T) {
	m := model.NewScriptedModel(model.TextTurn("unused"))
	loop := newLoop(newRegistry(t, dateTimeTool(t)), m)

	_, err := loop.Run(context.Background(), Request{Messages: userMsg("hi"), ToolNames: []string{"ghost"}})

	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "tool_names", vErr.Field)
	assert.Equal(t, 0, m.Calls())
}

func TestRun_ModelCallsUnknownTool(t *testing.T) {
	var calls int32
	m := model.NewScriptedModel(
		model.ToolCallTurn(call("c1", "ghost", nil)),
		model.TextTurn("done"),
	)
	loop := newLoop(newRegistry(t, echoTool(t, "echo", &calls)), m)

	res, err := loop.Run(context.Background(), Request{Messages: userMsg("hi")})
	require.NoError(t, err)
	require.Len(t, res.ToolResults, 1)
	assert.False(t, res.ToolResults[0].Success)
	assert.Equal(t, "tool 'ghost' not found", res.ToolResults[0].Error)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestRun_InvalidArgsNeverReachTool(t *testing.T) {
	var calls int32
	m := model.NewScriptedModel(
		model.ToolCallTurn(call("c1", "echo", map[string]any{"value": 42})),
		model.TextTurn("done"),
	)
	loop := newLoop(newRegistry(t, echoTool(t, "echo", &calls)), m)

	res, err := loop.Run(context.Background(), Request{Messages: userMsg("hi")})
	require.NoError(t, err)
	require.Len(t, res.ToolResults, 1)
	assert.False(t, res.ToolResults[0].Success)
	assert.Contains(t, res.ToolResults[0].Error, "validation error")
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestRun_MaxIterationsForcesFinalAnswer(t *testing.T) {
	for _, maxIter := range []int{1, 3, 5} {
		t.Run(fmt.Sprintf("max_%d", maxIter), func(t *testing.T) {
			m := model.NewScriptedModel(
				func(_ context.Context, req model.Request) (*model.Response, error) {
					if len(req.Tools) == 0 {
						return &model.Response{Content: "forced answer"}, nil
					}
					return &model.Response{ToolCalls: []core.ToolCall{call("", "echo", map[string]any{"value": "again"})}}, nil
				},
			)
			loop := newLoop(newRegistry(t, echoTool(t, "echo", nil)), m)

			res, err := loop.Run(context.Background(), Request{Messages: userMsg("loop"), MaxIterations: maxIter})
			require.NoError(t, err)
			assertStepInvariants(t, res)

			assert.Equal(t, maxIter+1, m.Calls())
			assert.Equal(t, maxIter+1, res.LLMCalls)
			assert.Len(t, res.ToolCalls, maxIter)
			assert.Len(t, res.Steps, maxIter+1)
			last := res.Steps[len(res.Steps)-1]
			assert.Contains(t, last.Reasoning, "Max iterations")
			assert.Equal(t, StateMaxIterationsForced, res.State)
			assert.Equal(t, "forced answer", res.ResponseText)

			reqs := m.Requests()
			assert.Empty(t, reqs[maxIter].Tools)
			forced := reqs[maxIter].Messages
			assert.Equal(t, core.RoleSystem, forced[len(forced)-1].Role)
			assert.Equal(t, DefaultForcedFinalPrompt, forced[len(forced)-1].Content)

			for _, c := range res.ToolCalls {
				assert.Regexp(t, `^call_[0-9a-f-]{36}$`, c.ID)
			}
		})
	}
}

func TestRun_ParallelResultsKeepCallOrder(t *testing.T) {
	var calls int32
	m := model.NewScriptedModel(
		model.ToolCallTurn(
			call("c1", "echo", map[string]any{"value": "first", "delay_ms": 60}),
			call("c2", "echo", map[string]any{"value": "second", "delay_ms": 30}),
			call("c3", "echo", map[string]any{"value": "third"}),
		),
		model.TextTurn("done"),
	)
	loop := newLoop(newRegistry(t, echoTool(t, "echo", &calls)), m, func(o *Options) { o.MaxParallelTools = 3 })

	res, err := loop.Run(context.Background(), Request{Messages: userMsg("go")})
	require.NoError(t, err)
	assertStepInvariants(t, res)

	require.Len(t, res.ToolResults, 3)
	for i, want := range []string{"first", "second", "third"} {
		assert.Equal(t, fmt.Sprintf("c%d", i+1), res.ToolResults[i].ToolCallID)
		assert.Equal(t, want, res.ToolResults[i].Result["value"])
	}
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))

	msgs := m.Requests()[1].Messages
	require.Len(t, msgs, 5)
	for i := 0; i < 3; i++ {
		assert.Equal(t, fmt.Sprintf("c%d", i+1), msgs[2+i].ToolCallID)
	}
}

func TestRun_PanicBecomesFailedResult(t *testing.T) {
	m := model.NewScriptedModel(
		model.ToolCallTurn(call("c1", "panic", nil), call("c2", "echo", map[string]any{"value": "ok"})),
		model.TextTurn("recovered"),
	)
	loop := newLoop(newRegistry(t, panickingTool(t, "panic"), echoTool(t, "echo", nil)), m)

	res, err := loop.Run(context.Background(), Request{Messages: userMsg("go")})
	require.NoError(t, err)
	require.Len(t, res.ToolResults, 2)
	assert.False(t, res.ToolResults[0].Success)
	assert.Contains(t, res.ToolResults[0].Error, "kaboom")
	assert.True(t, res.ToolResults[1].Success)
	assert.Equal(t, "recovered", res.ResponseText)
}

func TestRun_ProviderErrorIsFatal(t *testing.T) {
	providerErr := errors.New("rate limited")
	m := model.NewScriptedModel(
		model.ToolCallTurn(call("c1", "echo", map[string]any{"value": "x"})),
		model.ErrorTurn(providerErr),
	)
	loop := newLoop(newRegistry(t, echoTool(t, "echo", nil)), m)

	res, err := loop.Run(context.Background(), Request{Messages: userMsg("go")})
	assert.Nil(t, res)

	var pErr *core.LLMProviderError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, 2, pErr.Iteration)
	assert.ErrorIs(t, err, providerErr)
}

func TestRun_CancellationDuringModelCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := model.NewScriptedModel(func(ctx context.Context, _ model.Request) (*model.Response, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	})
	loop := newLoop(newRegistry(t, echoTool(t, "echo", nil)), m)

	res, err := loop.Run(ctx, Request{Messages: userMsg("go")})
	assert.Nil(t, res)

	var cErr *core.CancellationError
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, 1, cErr.Iteration)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_CancellationDuringTools(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := model.NewScriptedModel(
		model.ToolCallTurn(call("c1", "echo", map[string]any{"value": "slow", "delay_ms": 5000})),
		model.TextTurn("never"),
	)
	loop := newLoop(newRegistry(t, echoTool(t, "echo", nil)), m)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	res, err := loop.Run(ctx, Request{Messages: userMsg("go")})
	assert.Nil(t, res)

	var cErr *core.CancellationError
	require.ErrorAs(t, err, &cErr)
	assert.True(t, core.IsCancellation(err))
	assert.Equal(t, 1, m.Calls())
}

func TestRun_DeadlineExceeded(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	m := model.NewScriptedModel(func(ctx context.Context, _ model.Request) (*model.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	loop := newLoop(newRegistry(t, echoTool(t, "echo", nil)), m)

	_, err := loop.Run(ctx, Request{Messages: userMsg("go")})
	var cErr *core.CancellationError
	require.ErrorAs(t, err, &cErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRun_EntryValidation(t *testing.T) {
	temp := func(v float64) *float64 { return &v }

	tests := []struct {
		name  string
		req   Request
		reg   *tool.Registry
		field string
	}{
		{name: "no messages", req: Request{}, field: "messages"},
		{name: "tool role", req: Request{Messages: []core.Message{core.NewMessage(core.RoleTool, "{}")}}, field: "messages[0].role"},
		{name: "temperature high", req: Request{Messages: userMsg("hi"), Temperature: temp(1.5)}, field: "temperature"},
		{name: "temperature negative", req: Request{Messages: userMsg("hi"), Temperature: temp(-0.1)}, field: "temperature"},
		{name: "max tokens too large", req: Request{Messages: userMsg("hi"), MaxTokens: 4001}, field: "max_tokens"},
		{name: "max tokens negative", req: Request{Messages: userMsg("hi"), MaxTokens: -1}, field: "max_tokens"},
		{name: "max iterations negative", req: Request{Messages: userMsg("hi"), MaxIterations: -1}, field: "max_iterations"},
		{name: "no tools available", req: Request{Messages: userMsg("hi")}, reg: tool.NewRegistry(), field: "tool_names"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := tt.reg
			if reg == nil {
				reg = newRegistry(t, echoTool(t, "echo", nil))
			}
			m := model.NewScriptedModel(model.TextTurn("unused"))

			_, err := newLoop(reg, m).Run(context.Background(), tt.req)

			var vErr *core.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
			assert.Equal(t, 0, m.Calls())
		})
	}
}

func TestRun_BoundaryValuesAccepted(t *testing.T) {
	zero, one := 0.0, 1.0
	for _, req := range []Request{
		{Messages: userMsg("hi"), Temperature: &zero, MaxTokens: 1, MaxIterations: 1},
		{Messages: userMsg("hi"), Temperature: &one, MaxTokens: MaxTokensLimit},
	} {
		m := model.NewScriptedModel(model.TextTurn("ok"))
		res, err := newLoop(newRegistry(t, echoTool(t, "echo", nil)), m).Run(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "ok", res.ResponseText)
	}
}

func TestRun_ToolNamesSubset(t *testing.T) {
	m := model.NewScriptedModel(model.TextTurn("ok"))
	reg := newRegistry(t, echoTool(t, "echo", nil), dateTimeTool(t))

	_, err := newLoop(reg, m).Run(context.Background(), Request{Messages: userMsg("hi"), ToolNames: []string{tool.DateTimeToolName}})
	require.NoError(t, err)

	tools := m.Requests()[0].Tools
	require.Len(t, tools, 1)
	assert.Equal(t, tool.DateTimeToolName, tools[0].Name)
}

func TestRun_DoesNotMutateCallerMessages(t *testing.T) {
	msgs := userMsg("hi")
	m := model.NewScriptedModel(
		model.ToolCallTurn(call("c1", "echo", map[string]any{"value": "x"})),
		model.TextTurn("done"),
	)

	res, err := newLoop(newRegistry(t, echoTool(t, "echo", nil)), m).Run(context.Background(), Request{Messages: msgs})
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
	// user, assistant tool call, tool result, final assistant
	assert.Len(t, res.Messages, 4)
}
