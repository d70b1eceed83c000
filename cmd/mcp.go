package cmd

import (
	"context"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/joescharf/voicecal/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for assistant integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets an assistant drive voicecal conversations as tools. Configure it with:

  {
    "mcpServers": {
      "voicecal": { "command": "voicecal", "args": ["mcp"] }
    }
  }

Available tools: voicecal_say, voicecal_confirm, voicecal_cancel,
voicecal_undo, voicecal_conversation, voicecal_check_conflicts`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcpRun(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func mcpRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, shutdownSignals()...)
	defer stop()

	p, err := getPipeline(ctx)
	if err != nil {
		return err
	}
	// stdout carries the protocol; logs stay on stderr.
	logger.Info("mcp server starting", "user", currentUser())
	srv := mcp.NewServer(p.engine, p.detector, p.calendars, currentUser(), buildVersion)
	return srv.ServeStdio(ctx)
}
