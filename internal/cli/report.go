package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/freedom_case_2/crcollector/internal/app"
)

func ReportCmd(open Opener) *cobra.Command {
	var (
		days   int
		export bool
		post   bool
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Build the daily report",
		Long:  "Build the daily report for the collection window and print it as markdown. --export writes it to REPORT_OUTPUT_DIR and --post sends the summary to SLACK_REPORT_CHANNEL.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				rep, err := a.Reports.GenerateDaily(ctx, a.Collection.Window(days))
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if export {
					if rep, err = a.Reports.Export(ctx, rep); err != nil {
						return err
					}
					fmt.Fprintf(out, "%s %s\n", color.New(color.FgGreen).Sprint("exported"), rep.ExportedFile)
				}
				if post {
					if rep, err = a.Reports.Post(ctx, rep); err != nil {
						return err
					}
					fmt.Fprintf(out, "%s %s (%s)\n", color.New(color.FgGreen).Sprint("posted"), rep.PostedChannelID, rep.PostedMessageTS)
				}
				if !export && !post {
					fmt.Fprint(out, a.Reports.RenderMarkdown(rep))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&days, "days", "d", 0, "report the last N days instead of the daily window")
	cmd.Flags().BoolVar(&export, "export", false, "write the markdown file")
	cmd.Flags().BoolVar(&post, "post", false, "post the summary to Slack")
	return cmd
}
