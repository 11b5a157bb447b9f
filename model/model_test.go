package model

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/agentlab/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ Model = (*MockModel)(nil)
	_ Model = (*ScriptedModel)(nil)
)

func userRequest(text string) Request {
	return Request{Messages: []core.Message{core.NewMessage(core.RoleUser, text)}}
}

func TestMockModel_CannedAndDefault(t *testing.T) {
	m := NewMockModel("mock", "mock")
	m.AddResponse("hi", "hello there")

	resp, err := Collect(context.Background(), m, userRequest("hi"))
	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.Content)

	resp, err = Collect(context.Background(), m, userRequest("other"))
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: other", resp.Content)
}

func TestMockModel_Streaming(t *testing.T) {
	m := NewMockModel("mock", "mock")
	req := userRequest("ab")
	req.Stream = true

	respCh, errCh := m.Generate(context.Background(), req)
	var partials int
	var final Response
	for r := range respCh {
		if r.Partial {
			partials++
			continue
		}
		final = r
	}
	assert.NoError(t, <-errCh)
	assert.Equal(t, len("Mock response to: ab"), partials)
	assert.Equal(t, "Mock response to: ab", final.Content)
}

func TestCollectStream_ForwardsPartials(t *testing.T) {
	m := NewMockModel("mock", "mock")

	var streamed string
	resp, err := CollectStream(context.Background(), m, userRequest("ab"), func(r Response) {
		assert.True(t, r.Partial)
		streamed += r.Content
	})
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: ab", resp.Content)
	assert.Equal(t, resp.Content, streamed)
}

func TestCollect_LeavesStreamFlag(t *testing.T) {
	m := NewMockModel("mock", "mock")
	req := userRequest("ab")
	req.Stream = true

	resp, err := Collect(context.Background(), m, req)
	require.NoError(t, err)
	assert.False(t, resp.Partial)
	assert.Equal(t, "Mock response to: ab", resp.Content)
}

func TestMockModel_NoUserMessage(t *testing.T) {
	_, err := Collect(context.Background(), NewMockModel("mock", "mock"), Request{})
	assert.Error(t, err)
}

func TestScriptedModel_ReplaysAndRepeatsLast(t *testing.T) {
	call := core.ToolCall{ID: "c1", Name: "lookup"}
	m := NewScriptedModel(ToolCallTurn(call), TextTurn("done"))

	r1, err := Collect(context.Background(), m, userRequest("q"))
	require.NoError(t, err)
	require.Len(t, r1.ToolCalls, 1)
	assert.Equal(t, "lookup", r1.ToolCalls[0].Name)

	for i := 0; i < 2; i++ {
		r, err := Collect(context.Background(), m, userRequest("q"))
		require.NoError(t, err)
		assert.Equal(t, "done", r.Content)
	}
	assert.Equal(t, 3, m.Calls())
	assert.Len(t, m.Requests(), 3)
}

func TestScriptedModel_ErrorAndCancellation(t *testing.T) {
	boom := errors.New("provider down")
	m := NewScriptedModel(ErrorTurn(boom))

	_, err := Collect(context.Background(), m, userRequest("q"))
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Collect(ctx, NewScriptedModel(TextTurn("late")), userRequest("q"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLastUserText(t *testing.T) {
	msgs := []core.Message{
		core.NewMessage(core.RoleUser, "first"),
		core.NewMessage(core.RoleAssistant, "reply"),
		core.NewMessage(core.RoleUser, "  second "),
		core.NewMessage(core.RoleSystem, "sys"),
	}
	assert.Equal(t, "second", LastUserText(msgs))
	assert.Equal(t, "", LastUserText(nil))
}
