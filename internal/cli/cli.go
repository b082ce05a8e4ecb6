// Package cli implements the crctl commands.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/freedom_case_2/crcollector/internal/app"
	"github.com/freedom_case_2/crcollector/internal/config"
)

// Opener builds the application for one command invocation.
type Opener func(ctx context.Context) (*app.App, error)

// DefaultOpener loads configuration from .env and the environment.
func DefaultOpener(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, app.NewLogger(cfg, "crctl"))
}

func Root(open Opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "crctl",
		Short:         "Collect and review customer requests",
		Long:          "crctl collects customer requests from Confluence, Figma and Slack, lists them, updates their status and produces daily reports.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		CollectCmd(open),
		ReportCmd(open),
		StatusCmd(open),
		ListCmd(open),
		MCPCmd(open),
	)
	return root
}

// withApp opens the application, runs fn and closes it.
func withApp(cmd *cobra.Command, open Opener, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
