package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/freedom_case_2/crcollector/internal/app"
	"github.com/freedom_case_2/crcollector/internal/models"
	"github.com/freedom_case_2/crcollector/internal/service"
)

var priorityColors = map[models.Priority]*color.Color{
	models.PriorityUrgent: color.New(color.FgRed, color.Bold),
	models.PriorityHigh:   color.New(color.FgYellow),
	models.PriorityMedium: color.New(color.FgGreen),
	models.PriorityLow:    color.New(color.FgHiBlack),
}

func ListCmd(open Opener) *cobra.Command {
	var q service.ListQuery
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List collected customer requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				items, err := a.Query.ListRequests(ctx, q)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "no requests")
					return nil
				}
				for _, r := range items {
					c, ok := priorityColors[r.Priority]
					if !ok {
						c = color.New()
					}
					fmt.Fprintf(out, "%s  %s  %-10s %-11s %s  %s\n",
						r.CRNumber, c.Sprintf("%-6s", r.Priority), r.Source, r.Status, r.Title, color.New(color.FgHiBlack).Sprint(r.RequesterName))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&q.Project, "project", "p", "", "project label")
	cmd.Flags().IntVarP(&q.Days, "days", "d", service.DefaultListDays, "lookback in days")
	cmd.Flags().StringVarP(&q.Source, "source", "s", "", "slack, figma or confluence")
	cmd.Flags().StringVar(&q.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&q.Priority, "priority", "", "priority filter")
	cmd.Flags().IntVarP(&q.Limit, "limit", "n", service.DefaultListLimit, "maximum rows")
	return cmd
}
