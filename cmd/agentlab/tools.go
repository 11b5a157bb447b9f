package main

import (
	"fmt"
	"strings"

	"github.com/hupe1980/agentlab/tool"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

// Version is reported by the MCP server.
var Version = "dev"

func newToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect the registered tools",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List registered tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			descs, err := a.service.Tools().DescribeAll()
			if err != nil {
				return err
			}
			for _, d := range descs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", TitleStyle.Render(d.Name), DimStyle.Render(firstLine(d.Description)))
			}
			return nil
		},
	}

	describe := &cobra.Command{
		Use:   "describe <name>",
		Short: "Print a tool's descriptor with its JSON schemas",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			d, ok := a.service.Tools().Describe(args[0])
			if !ok {
				return fmt.Errorf("tool %q not found", args[0])
			}
			return writeJSON(cmd.OutOrStdout(), d)
		},
	}

	cmd.AddCommand(list, describe)
	return cmd
}

func newMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Model Context Protocol integration",
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the registered tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := tool.NewMCPServer(a.service.Tools(), "agentlab", Version)
			if err != nil {
				return fmt.Errorf("create mcp server: %w", err)
			}
			a.logger.Info("Serving tools over MCP", "tools.count", a.service.Tools().Len())
			return server.NewStdioServer(s).Listen(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.AddCommand(serve)
	return cmd
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
