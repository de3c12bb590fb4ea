package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Mutsuki-Y/faq-llm-playground/internal/app"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/config"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "FAQ データと画像を取り込んでベクトル索引を構築する",
	RunE: func(*cobra.Command, []string) error {
		return runIngest()
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

// runIngest runs one ingestion batch and prints the report.
func runIngest() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	report, err := a.Pipeline.IngestAll(ctx)
	if err != nil {
		return fmt.Errorf("running ingestion: %w", err)
	}

	fmt.Printf("取り込み完了: %d 件 (エラー %d 件)\n", report.Processed, report.Errors)
	for _, detail := range report.Details {
		fmt.Printf("  - %s\n", detail)
	}
	return nil
}
