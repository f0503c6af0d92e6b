package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hitcastor/snapshotter/internal/chart"
	"github.com/hitcastor/snapshotter/internal/pipeline"
)

var (
	onceDate   string
	onceRegion string
	onceForce  bool

	onceCmd = &cobra.Command{
		Use:   "once",
		Short: "Run a single snapshot job and exit",
		Long:  "Fetch, normalize, upload and commit one snapshot for the given date and region",
		Example: `  snapshotter once
  snapshotter once --date 2025-06-01
  snapshotter once --date 2025-06-01 --region us --force`,
		RunE: runOnce,
	}
)

func init() {
	onceCmd.Flags().StringVar(&onceDate, "date", "", "chart date (YYYY-MM-DD, default: yesterday UTC)")
	onceCmd.Flags().StringVar(&onceRegion, "region", "", "chart region (default: REGION env)")
	onceCmd.Flags().BoolVar(&onceForce, "force", false, "re-run even when the snapshot already exists")
	rootCmd.AddCommand(onceCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	rt, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	date := onceDate
	if date == "" {
		date = chart.YesterdayUTC()
	}
	if !chart.ValidDate(date) {
		return fmt.Errorf("invalid date %q, expected YYYY-MM-DD", date)
	}
	region := onceRegion
	if region == "" {
		region = rt.cfg.Region
	}

	job := pipeline.Job{DateUTC: date, Region: region, Force: onceForce}
	fmt.Println(color.GreenString("Running snapshot job %s", job))

	result, err := rt.pipe.Run(ctx, job)
	if err != nil {
		return fmt.Errorf("snapshot job failed: %w", err)
	}

	if result.Skipped {
		fmt.Println(color.YellowString("Snapshot already committed, nothing to do"))
	} else {
		fmt.Println(color.GreenString("Snapshot committed"))
	}
	fmt.Printf("  json: %s\n", result.Snapshot.JSONURL)
	fmt.Printf("  sha:  %s\n", result.Snapshot.JSONSHA256)
	if result.Snapshot.IPFSCID != "" {
		fmt.Printf("  cid:  %s\n", result.Snapshot.IPFSCID)
	}
	return nil
}
