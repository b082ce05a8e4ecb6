package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/freedom_case_2/crcollector/internal/app"
	"github.com/freedom_case_2/crcollector/internal/models"
)

func CollectCmd(open Opener) *cobra.Command {
	var (
		sources []string
		days    int
	)
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run one collection pass",
		Long: `Run the configured collectors once and store new customer requests.
Without --days the daily window (yesterday COLLECT_HOUR to today COLLECT_HOUR) is used.`,
		Example: "  crctl collect\n  crctl collect --source figma --source confluence-comments --days 3",
		RunE: func(cmd *cobra.Command, args []string) error {
			if days < 0 {
				return fmt.Errorf("--days must not be negative")
			}
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				if unknown := a.Collection.UnknownSources(sources); len(unknown) > 0 {
					return fmt.Errorf("unknown collector names: %s", strings.Join(unknown, ", "))
				}
				res := a.Collection.RunCollectionWindow(ctx, models.TriggerManual, sources, a.Collection.Window(days))
				printRun(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&sources, "source", "s", nil, "collector name or source to run (repeatable)")
	cmd.Flags().IntVarP(&days, "days", "d", 0, "collect the last N days instead of the daily window")
	return cmd
}

func printRun(w io.Writer, res models.RunResult) {
	sources := make([]string, 0, len(res.PerSourceCounts))
	for s := range res.PerSourceCounts {
		sources = append(sources, s)
	}
	sort.Strings(sources)

	fmt.Fprintf(w, "Run %s (%s)\n", res.RunID, res.Trigger)
	for _, s := range sources {
		errs := res.PerSourceErrors[s]
		mark := color.New(color.FgGreen).Sprint("✓")
		if len(errs) > 0 {
			mark = color.New(color.FgYellow).Sprint("!")
		}
		fmt.Fprintf(w, "  %s %-11s %d new\n", mark, s, res.PerSourceCounts[s])
		for _, e := range errs {
			fmt.Fprintf(w, "      %s\n", color.New(color.FgRed).Sprint(e))
		}
	}
	for _, name := range res.Skipped {
		fmt.Fprintf(w, "  %s %s not configured\n", color.New(color.FgHiBlack).Sprint("-"), name)
	}
	for _, name := range res.Truncated {
		fmt.Fprintf(w, "  %s %s stopped at its budget\n", color.New(color.FgYellow).Sprint("…"), name)
	}
	fmt.Fprintf(w, "Total %s in %dms\n", color.New(color.Bold).Sprintf("%d", res.Total()), res.TotalDurationMs)
}
