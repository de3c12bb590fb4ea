package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Mutsuki-Y/faq-llm-playground/internal/config"
)

// Version information (injected at build time via ldflags).
var (
	Version   = "development"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "バージョン情報を表示する",
	RunE: func(*cobra.Command, []string) error {
		return runVersion()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion() error {
	fmt.Printf("faqbot %s\n", Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Println()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	fmt.Println("Configuration:")
	fmt.Printf("  Provider: %s\n", cfg.Provider)
	fmt.Printf("  Chat model: %s\n", cfg.ChatModel)
	fmt.Printf("  Embedder model: %s\n", cfg.EmbedderModel)
	fmt.Printf("  Top-k: %d\n", cfg.TopK)
	fmt.Printf("  History limit: %d\n", cfg.HistoryLimit)

	key := "OPENAI_API_KEY"
	if cfg.Provider == config.ProviderGoogleAI {
		key = "GEMINI_API_KEY"
	}
	if os.Getenv(key) != "" {
		fmt.Printf("  %s: configured\n", key)
	} else {
		fmt.Printf("  %s: not set\n", key)
	}

	return nil
}
