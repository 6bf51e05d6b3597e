// Package cmd defines the faithh command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "faithh",
	Short: "FAITHH - personal AI assistant backend",
	Long: `FAITHH is a personal AI assistant backend with persistent memory.

It answers questions over a context assembled from conversation
history, memory documents, and a pgvector knowledge index, generating
through a cloud provider with local fallback.

Run 'faithh serve' to start the HTTP API, or 'faithh ask' for a
one-shot question from the terminal.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
