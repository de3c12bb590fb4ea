// Package app wires the application together: configuration, tracing,
// database, the LLM gateway, stores, the ingestion pipeline and the
// chat orchestrator.
//
// App is constructed once at startup via Setup and torn down with
// Close; no package-level state.
package app

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Mutsuki-Y/faq-llm-playground/internal/chat"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/config"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/etl"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/knowledge"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/llm"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/log"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/session"
)

// App is the application container.
type App struct {
	Config   *config.Config
	Logger   log.Logger
	DBPool   *pgxpool.Pool
	Gateway  llm.Client
	Index    knowledge.Index
	Sessions session.Store
	Pipeline *etl.Pipeline
	Chat     *chat.Service

	otelCleanup func()
}

// Close releases all resources in reverse initialization order.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}

	if a.DBPool != nil {
		a.DBPool.Close()
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}
