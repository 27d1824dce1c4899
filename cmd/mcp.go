package cmd

import (
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/joescharf/issuetracker/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets an MCP client read and write issues directly. Configure the
client with:

  {
    "mcpServers": {
      "issuetracker": { "command": "issuetracker", "args": ["mcp"] }
    }
  }

Available tools: issues_projects, issues_list, issues_create,
issues_update, issues_delete`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcpRun(cmd)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func mcpRun(cmd *cobra.Command) error {
	svc, err := getService()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals()...)
	defer stop()

	return mcp.NewServer(svc, buildVersion).ServeStdio(ctx)
}
