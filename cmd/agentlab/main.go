package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "agentlab",
		Short:        "agentlab - tool-using chat agent with memory and retrieval",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML or TOML config file")
	cmd.AddCommand(newChatCmd(), newContextCmd(), newToolsCmd(), newMCPCmd(), newRAGCmd(), newMemoryCmd())
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
