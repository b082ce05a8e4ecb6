package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/freedom_case_2/crcollector/internal/app"
	"github.com/freedom_case_2/crcollector/internal/models"
)

func StatusCmd(open Opener) *cobra.Command {
	var assignee string
	cmd := &cobra.Command{
		Use:     "status <CR> <status>",
		Short:   "Change the status of a customer request",
		Example: "  crctl status CR-20261015-001 in_progress --assignee minji",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := models.ParseStatus(args[1])
			if err != nil {
				return err
			}
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				r, err := a.Query.UpdateStatus(ctx, args[0], status, assignee)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s → %s", r.CRNumber, r.Title, color.New(color.FgCyan).Sprint(r.Status))
				if r.Assignee != "" {
					fmt.Fprintf(cmd.OutOrStdout(), " (%s)", r.Assignee)
				}
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&assignee, "assignee", "a", "", "assign the request")
	return cmd
}
