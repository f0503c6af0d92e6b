package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hitcastor/snapshotter/internal/config"
	"github.com/hitcastor/snapshotter/internal/ledger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the ledger schema",
	Long:  "Create or update the snapshots table and its indexes, then verify the ledger is queryable",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if cfg.PGURL == "" {
		return fmt.Errorf("PG_URL is required")
	}

	led, err := ledger.New(cfg.PGURL)
	if err != nil {
		return fmt.Errorf("error connecting to ledger: %w", err)
	}
	defer led.Close()

	if err := led.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	count, err := led.Count(ctx)
	if err != nil {
		return fmt.Errorf("post-migration check failed: %w", err)
	}

	fmt.Println(color.GreenString("Ledger schema is up to date (%d snapshots)", count))
	return nil
}
