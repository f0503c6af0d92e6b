package main

import (
	"os"

	"github.com/hitcastor/snapshotter/internal/cli/cmd"
)

// Build metadata injected via -ldflags.
var (
	version   string
	gitCommit string
	buildDate string
)

func main() {
	cmd.SetVersionInfo(version, gitCommit, buildDate)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
