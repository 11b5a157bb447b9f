package anthropic

import (
	"testing"

	"github.com/hupe1980/agentlab/core"
	"github.com/hupe1980/agentlab/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ model.Model = (*Model)(nil)

func TestBuildMessagesFoldsToolResults(t *testing.T) {
	msgs := []core.Message{
		core.NewMessage(core.RoleSystem, "be brief"),
		core.NewMessage(core.RoleUser, "time in two zones?"),
		{Role: core.RoleAssistant, ToolCalls: []core.ToolCall{
			{ID: "t1", Name: "get_current_datetime", Args: map[string]any{"timezone": "UTC"}},
			{ID: "t2", Name: "get_current_datetime", Args: map[string]any{"timezone": "Asia/Tokyo"}},
		}},
		{Role: core.RoleTool, ToolCallID: "t1", Content: "{}"},
		{Role: core.RoleTool, ToolCallID: "t2", Content: "{}"},
	}

	out := buildMessages(msgs)
	require.Len(t, out, 3)
	assert.Len(t, out[1].Content, 2)
	assert.Len(t, out[2].Content, 2, "both tool results share one user message")

	sys := extractSystemMessage(msgs)
	require.Len(t, sys, 1)
	assert.Equal(t, "be brief", sys[0].Text)
}

func TestBuildTools(t *testing.T) {
	tools := buildTools([]core.ToolDescriptor{{Name: "lookup", Description: "look things up"}})
	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	assert.Equal(t, "lookup", tools[0].OfTool.Name)
}

func TestInfo(t *testing.T) {
	m := NewModelFromClient(nil)
	assert.Equal(t, "anthropic", m.Info().Provider)
	assert.True(t, m.Info().SupportsTools)
}
