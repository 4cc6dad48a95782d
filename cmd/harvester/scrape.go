package main

import (
	"fmt"
	"io"

	"github.com/qepting91/reddit-link-harvester/internal/scrape"
	"github.com/spf13/cobra"
)

const defaultBackfillDays = 30

func newBackfillCmd(o *rootOptions) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Collect links posted within the last N days",
		RunE: func(cmd *cobra.Command, _ []string) error {
			targets, err := o.targets()
			if err != nil {
				return err
			}
			a, err := o.openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			rep, err := a.harvester.RunBackfill(cmd.Context(), targets, days)
			printReport(cmd.OutOrStdout(), rep)
			return err
		},
	}
	cmd.Flags().IntVar(&days, "days", defaultBackfillDays, "how many days back to collect")
	return cmd
}

func newDailyCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "daily",
		Aliases: []string{"incremental"},
		Short:   "Collect links posted since each community's last checkpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			targets, err := o.targets()
			if err != nil {
				return err
			}
			a, err := o.openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			rep, err := a.harvester.RunIncremental(cmd.Context(), targets)
			printReport(cmd.OutOrStdout(), rep)
			return err
		},
	}
}

func printReport(w io.Writer, rep scrape.Report) {
	if rep.RunID == "" {
		return
	}
	for _, res := range rep.Results {
		if res.Err != nil {
			fmt.Fprintf(w, "r/%-21s FAILED: %v\n", res.Community, res.Err)
			continue
		}
		fmt.Fprintf(w, "r/%-21s posts=%d new=%d dup=%d\n",
			res.Community, res.Stats.PostsProcessed, res.Stats.NewURLs, res.Stats.Duplicates)
	}
	fmt.Fprintf(w, "%s run %s: posts=%d new=%d dup=%d failed=%d\n",
		rep.Mode, rep.RunID, rep.Totals.PostsProcessed, rep.Totals.NewURLs, rep.Totals.Duplicates, len(rep.Failed()))
}
