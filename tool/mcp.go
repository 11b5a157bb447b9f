package tool

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/hupe1980/agentlab/core"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ToMCPTool converts a descriptor into the MCP tool format, keeping the input
// schema verbatim.
func ToMCPTool(d core.ToolDescriptor) (mcp.Tool, error) {
	raw, err := json.Marshal(d.Parameters())
	if err != nil {
		return mcp.Tool{}, err
	}
	return mcp.NewToolWithRawSchema(d.Name, d.Description, raw), nil
}

// MCPHandler returns an MCP tool handler that executes name through the
// registry. Tool failures become MCP error results, mirroring how the agent
// loop feeds them back to the model as data.
func MCPHandler(r *Registry, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := r.Execute(ctx, core.ToolCall{Name: name, Args: req.GetArguments()})
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil, ctx.Err()
			}
			return mcp.NewToolResultError(err.Error()), nil
		}
		data, err := json.Marshal(result)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

// NewMCPServer exposes every registered tool through an MCP server. Tools
// registered afterwards are not picked up.
func NewMCPServer(r *Registry, name, version string) (*server.MCPServer, error) {
	s := server.NewMCPServer(name, version, server.WithToolCapabilities(false))

	descs, err := r.DescribeAll()
	if err != nil {
		return nil, err
	}
	for _, d := range descs {
		t, err := ToMCPTool(d)
		if err != nil {
			return nil, err
		}
		s.AddTool(t, MCPHandler(r, d.Name))
	}

	return s, nil
}
