package main

import (
	"context"
	"fmt"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/fractionalquest/voicegraph/internal/mcp"
)

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			st, err := newStore(cmd.Context(), logger)
			if err != nil {
				return fmt.Errorf("mcp: opening store: %w", err)
			}
			defer func() { _ = st.Close() }()

			fastPath := newFastPath(cmd.Context(), logger)
			defer func() { _ = fastPath.Close(context.Background()) }()

			orch, err := newOrchestrator(st, fastPath, logger)
			if err != nil {
				return fmt.Errorf("mcp: %w", err)
			}

			srv := mcp.NewServer(orch, st, logger)
			logger.Info("MCP server starting on stdio")
			if err := mcpserver.ServeStdio(srv.MCPServer()); err != nil {
				return fmt.Errorf("mcp: serving: %w", err)
			}
			return nil
		},
	}
	return cmd
}
