// Package cmd contains the faqbot CLI entrypoints.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Mutsuki-Y/faq-llm-playground/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "faqbot",
	Short: "faqbot - RAG ベースの FAQ チャットボット",
	Long: `faqbot は FAQ ナレッジベースに対して RAG（検索拡張生成）で
回答する日本語チャットボットです。

Excel の FAQ データと画像アセットを取り込み、pgvector に
ベクトル索引を構築し、HTTP API 経由で質問に回答します。`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// newLogger builds the process logger. JSON output keeps log lines
// machine-parsable in container environments.
func newLogger() log.Logger {
	return log.New(log.Config{Level: slog.LevelInfo, JSON: true})
}
