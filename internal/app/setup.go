package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"golang.org/x/time/rate"

	"github.com/Mutsuki-Y/faq-llm-playground/db"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/chat"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/config"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/etl"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/knowledge"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/llm"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/log"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/session"
)

// gatewayRPS bounds outgoing provider calls. One shared limiter covers
// completions, embeddings and captions.
const (
	gatewayRPS   = 5.0
	gatewayBurst = 10
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup. Call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.otelCleanup = provideTracing(ctx, cfg, logger)

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	gateway, err := llm.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating LLM gateway: %w", err)
	}
	limiter := rate.NewLimiter(rate.Limit(gatewayRPS), gatewayBurst)
	a.Gateway = llm.WithRetry(gateway, llm.DefaultRetryConfig(), limiter, logger)

	a.Index = knowledge.NewStore(pool, logger)
	a.Sessions = session.NewPostgres(pool, logger)
	a.Pipeline = etl.NewPipeline(a.Gateway, a.Index, cfg.FAQDir, cfg.ImageDir, logger)
	a.Chat = chat.NewService(a.Gateway, a.Index, a.Sessions, cfg.TopK, cfg.HistoryLimit, logger)

	return a, nil
}

// provideTracing sets up OTLP HTTP trace export when an endpoint is
// configured. Returns the shutdown func, a no-op when tracing is off.
func provideTracing(ctx context.Context, cfg *config.Config, logger log.Logger) func() {
	if cfg.OTLPEndpoint == "" {
		return func() {}
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.Warn("creating OTLP exporter, tracing disabled", "error", err)
		return func() {}
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "faqbot"
	}
	res := resource.NewWithAttributes(semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	logger.Debug("tracing enabled",
		"endpoint", cfg.OTLPEndpoint,
		"service", serviceName,
	)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideDBPool runs migrations and creates the PostgreSQL connection
// pool with sensible defaults for connection management.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}
