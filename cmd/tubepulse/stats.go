package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tubepulse/tubepulse/pkg/tracker"
)

func newStatsCmd(opts *rootOptions) *cobra.Command {
	var (
		since  time.Duration
		recent int
		purge  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show remote model call statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(opts)
			if err != nil {
				return err
			}

			tr, err := tracker.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer tr.Close()

			ctx := context.Background()

			if purge > 0 {
				n, err := tr.Purge(ctx, time.Now().UTC().Add(-purge))
				if err != nil {
					return err
				}
				fmt.Printf("%d call records older than %s purged.\n", n, purge)
				return nil
			}

			// Recent call view
			if recent > 0 {
				calls, err := tr.Recent(ctx, recent)
				if err != nil {
					return err
				}
				if len(calls) == 0 {
					fmt.Println("No remote calls recorded.")
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "TIME\tMODEL\tOUTCOME\tATTEMPTS\tLATENCY\tFINGERPRINT")
				for _, c := range calls {
					fp := c.Fingerprint
					if len(fp) > 12 {
						fp = fp[:12]
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%dms\t%s\n",
						c.CreatedAt.Format("2006-01-02T15:04:05"), c.Model, c.Outcome, c.Attempts, c.LatencyMs, fp)
				}
				return w.Flush()
			}

			// Default: summary by model and outcome
			summaries, err := tr.Summary(ctx, time.Now().UTC().Add(-since))
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Println("No remote calls recorded.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tOUTCOME\tCALLS\tATTEMPTS\tAVG LATENCY")
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.0fms\n",
					s.Model, s.Outcome, s.Calls, s.TotalAttempts, s.AvgLatencyMs)
			}
			return w.Flush()
		},
	}

	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "summary window")
	cmd.Flags().IntVar(&recent, "recent", 0, "list the most recent calls instead of the summary")
	cmd.Flags().DurationVar(&purge, "purge", 0, "delete call records older than this duration")
	return cmd
}
