package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/faithh/faithh/internal/app"
	"github.com/faithh/faithh/internal/config"
	"github.com/faithh/faithh/internal/log"
)

var (
	askModel   string
	askSession string
	askNoRAG   bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a one-shot question",
	Long: `Ask sends a single question through the full pipeline and prints
the answer with its citations. Use --session to continue a session
started by an earlier ask.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAsk(strings.Join(args, " "))
	},
}

func init() {
	askCmd.Flags().StringVar(&askModel, "model", "", "preferred provider (gemini or ollama)")
	askCmd.Flags().StringVar(&askSession, "session", "", "session id to continue")
	askCmd.Flags().BoolVar(&askNoRAG, "no-rag", false, "skip knowledge base retrieval")
	rootCmd.AddCommand(askCmd)
}

func runAsk(question string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.New(log.Config{})
	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	result, err := a.Orchestrator.Answer(ctx, question, askSession, askModel, !askNoRAG)
	if err != nil {
		return fmt.Errorf("answering: %w", err)
	}

	fmt.Println(result.Text)
	if len(result.Citations) > 0 {
		fmt.Println("\nSources:")
		for _, c := range result.Citations {
			fmt.Printf("  - %s\n", c.Source)
		}
	}
	fmt.Printf("\n[provider: %s, session: %s]\n", result.Provider, result.SessionID)
	return nil
}
