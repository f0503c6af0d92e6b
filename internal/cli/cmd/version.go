package cmd

import (
	"fmt"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Version information injected by the main package at build time.
var (
	Version   string
	GitCommit string
	BuildDate string
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		title := color.New(color.FgCyan, color.Bold)
		label := color.New(color.FgGreen)

		title.Printf("snapshotter %s\n", orDefault(Version, "dev"))
		fmt.Println()

		label.Print("Git commit: ")
		fmt.Println(orDefault(GitCommit, "unknown"))

		label.Print("Built:      ")
		fmt.Println(orDefault(BuildDate, "unknown"))

		label.Print("Go version: ")
		fmt.Println(runtime.Version())

		label.Print("OS/Arch:    ")
		fmt.Printf("%s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// SetVersionInfo records build metadata from the main package.
func SetVersionInfo(version, gitCommit, buildDate string) {
	Version = version
	GitCommit = gitCommit
	BuildDate = buildDate
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
