package main

import (
	"fmt"
	"os"

	"github.com/wlvid/wlvid/internal/cli"
)

// Build-time variables (set via ldflags).
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := cli.NewRootCmd(version, commit, buildDate).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "wlvid: %v\n", err)
		os.Exit(1)
	}
}
