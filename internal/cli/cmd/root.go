// Package cmd wires the snapshotter subcommands.
package cmd

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool

	rootCmd = &cobra.Command{
		Use:   "snapshotter",
		Short: "Tamper-evident daily chart snapshots",
		Long: color.CyanString(`Hitcastor snapshotter - fetch daily streaming charts, normalize them,
and commit tamper-evident snapshots to immutable object storage.`),
		SilenceUsage: true,
	}
)

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional, env vars take precedence)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
