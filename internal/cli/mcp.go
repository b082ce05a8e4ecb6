package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/freedom_case_2/crcollector/internal/app"
	"github.com/freedom_case_2/crcollector/internal/mcpserver"
)

func MCPCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve request queries and collection over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				return mcpserver.ServeStdio(&mcpserver.Tools{
					Query:      a.Query,
					Collection: a.Collection,
					Logger:     a.Logger,
				})
			})
		},
	}
}
