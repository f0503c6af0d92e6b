package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hitcastor/snapshotter/internal/chart"
	"github.com/hitcastor/snapshotter/internal/pipeline"
)

var (
	backfillFrom   string
	backfillTo     string
	backfillRegion string
	backfillForce  bool
	backfillDelay  time.Duration

	backfillCmd = &cobra.Command{
		Use:   "backfill",
		Short: "Run snapshot jobs for a date range",
		Long:  "Run the pipeline for every date in [from, to], one at a time. Failures are reported per date and do not stop the range.",
		Example: `  snapshotter backfill --from 2025-05-01 --to 2025-05-31
  snapshotter backfill --from 2025-05-01 --to 2025-05-31 --region us --force`,
		RunE: runBackfill,
	}
)

func init() {
	backfillCmd.Flags().StringVar(&backfillFrom, "from", "", "first date (YYYY-MM-DD)")
	backfillCmd.Flags().StringVar(&backfillTo, "to", "", "last date (YYYY-MM-DD, inclusive)")
	backfillCmd.Flags().StringVar(&backfillRegion, "region", "", "chart region (default: REGION env)")
	backfillCmd.Flags().BoolVar(&backfillForce, "force", false, "re-run dates that already have snapshots")
	backfillCmd.Flags().DurationVar(&backfillDelay, "delay", 2*time.Second, "pause between dates")
	backfillCmd.MarkFlagRequired("from")
	backfillCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, args []string) error {
	if !chart.ValidDate(backfillFrom) || !chart.ValidDate(backfillTo) {
		return fmt.Errorf("dates must be YYYY-MM-DD")
	}
	from, _ := time.Parse("2006-01-02", backfillFrom)
	to, _ := time.Parse("2006-01-02", backfillTo)
	if to.Before(from) {
		return fmt.Errorf("--to %s is before --from %s", backfillTo, backfillFrom)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	rt, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	region := backfillRegion
	if region == "" {
		region = rt.cfg.Region
	}

	var done, skipped, failed int
	for d := from; !d.After(to); d = d.Add(24 * time.Hour) {
		if ctx.Err() != nil {
			break
		}

		job := pipeline.Job{
			DateUTC: d.Format("2006-01-02"),
			Region:  region,
			Force:   backfillForce,
		}
		// Each date runs in isolation: one bad day never aborts the range.
		result, err := rt.pipe.Run(ctx, job)
		switch {
		case err != nil:
			failed++
			fmt.Println(color.RedString("%s failed: %v", job.DateUTC, err))
		case result.Skipped:
			skipped++
			if verbose {
				fmt.Println(color.YellowString("%s already committed", job.DateUTC))
			}
		default:
			done++
			fmt.Println(color.GreenString("%s committed (%s)", job.DateUTC, result.Snapshot.JSONSHA256))
		}

		if d.Before(to) && backfillDelay > 0 {
			select {
			case <-time.After(backfillDelay):
			case <-ctx.Done():
			}
		}
	}

	fmt.Printf("backfill finished: %d committed, %d skipped, %d failed\n", done, skipped, failed)
	if failed > 0 {
		return fmt.Errorf("%d date(s) failed", failed)
	}
	return nil
}
