package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/faithh/faithh/internal/app"
)

// Build metadata, injected via ldflags.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("faithh %s\n", app.Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)

		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			fmt.Println("GEMINI_API_KEY: configured")
		} else {
			fmt.Println("GEMINI_API_KEY: not set (local provider only)")
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
