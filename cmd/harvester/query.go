package main

import (
	"fmt"
	"io"

	"github.com/qepting91/reddit-link-harvester/internal/scrape"
	"github.com/qepting91/reddit-link-harvester/internal/storage"
	"github.com/spf13/cobra"
)

func newExportCmd(o *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every stored link to a CSV file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := o.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := o.reporter(store).ExportAll(cmd.Context(), output)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d links to %s\n", n, output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", storage.DefaultExportFile, "destination CSV file")
	return cmd
}

func newStatsCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show totals for the link database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := o.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			sum, err := o.reporter(store).GlobalStats(cmd.Context())
			if err != nil {
				return err
			}
			counts, err := store.CommunityCounts(cmd.Context())
			if err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), sum, counts)
			return nil
		},
	}
}

// reporter is a harvester without a listing source; it only reads and
// exports what is already stored.
func (o *rootOptions) reporter(store *storage.Store) *scrape.Harvester {
	return scrape.New(nil, store, scrape.WithLogger(o.logger))
}

func printStats(w io.Writer, sum storage.Summary, counts []storage.CommunityCount) {
	fmt.Fprintf(w, "total links:  %d\n", sum.TotalURLs)
	fmt.Fprintf(w, "communities:  %d\n", sum.Communities)
	if sum.Oldest != nil && sum.Newest != nil {
		fmt.Fprintf(w, "posted:       %s .. %s\n",
			sum.Oldest.Format(storage.ExportTimeLayout), sum.Newest.Format(storage.ExportTimeLayout))
	}
	for _, c := range counts {
		fmt.Fprintf(w, "  r/%-21s %d\n", c.Community, c.Count)
	}
}
