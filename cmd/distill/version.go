package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// gitRelease, gitCommit and buildDate are overridden at build time via
// -ldflags "-X main.gitRelease=... -X main.gitCommit=... -X main.buildDate=...".
var (
	gitRelease = "dev"
	gitCommit  = "unknown"
	buildDate  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("distill %s\n", gitRelease)
		fmt.Printf("  commit: %s\n", gitCommit)
		fmt.Printf("  built:  %s\n", buildDate)
	},
}
