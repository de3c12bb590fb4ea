package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/Mutsuki-Y/faq-llm-playground/db"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/config"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "チャットセッションを管理する",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "セッション一覧を表示する",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runSessionsList(cmd.Context())
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "セッションを削除する",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSessionsDelete(cmd.Context(), args[0])
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// openSessionStore connects to the database and returns the session
// store. The LLM gateway is not needed for session management, so this
// skips full application setup.
func openSessionStore(ctx context.Context) (session.Store, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}

	return session.NewPostgres(pool, newLogger()), pool, nil
}

func runSessionsList(ctx context.Context) error {
	store, pool, err := openSessionStore(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	summaries, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}

	if len(summaries) == 0 {
		fmt.Println("セッションはありません。")
		return nil
	}

	for _, s := range summaries {
		fmt.Printf("%s  %3d msgs  %-16s  %s\n",
			s.ID, s.MessageCount, formatTime(s.CreatedAt), s.LastQuestion)
	}
	return nil
}

func runSessionsDelete(ctx context.Context, rawID string) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid session ID: %s", rawID)
	}

	store, pool, err := openSessionStore(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := store.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}

	fmt.Printf("セッション %s を削除しました。\n", id)
	return nil
}

// formatTime formats time in a human-readable relative format.
func formatTime(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%d minutes ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%d hours ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%d days ago", int(diff.Hours()/24))
	default:
		return t.Format("2006-01-02 15:04")
	}
}
