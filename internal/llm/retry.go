package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/Mutsuki-Y/faq-llm-playground/internal/log"
)

// RetryConfig configures the retry behavior for provider calls.
type RetryConfig struct {
	MaxRetries      int           // Maximum number of retry attempts after the first try
	InitialInterval time.Duration // Initial backoff interval
	MaxInterval     time.Duration // Maximum backoff interval
}

// DefaultRetryConfig retries transient failures exactly once with a short
// backoff. Validation and client errors never retry.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      1,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// retryClient decorates a Client with rate limiting and retry on
// transient failures.
type retryClient struct {
	inner   Client
	cfg     RetryConfig
	limiter *rate.Limiter
	logger  log.Logger
}

// WithRetry wraps client so transient failures (ErrTransient) are retried
// with exponential backoff. limiter may be nil to disable rate limiting;
// each attempt waits on the limiter separately.
func WithRetry(client Client, cfg RetryConfig, limiter *rate.Limiter, logger log.Logger) Client {
	return &retryClient{inner: client, cfg: cfg, limiter: limiter, logger: logger}
}

func (r *retryClient) Complete(ctx context.Context, messages []Message) (*Response, error) {
	var resp *Response
	err := r.execute(ctx, "complete", func() error {
		var err error
		resp, err = r.inner.Complete(ctx, messages)
		return err
	})
	return resp, err
}

func (r *retryClient) Embed(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	err := r.execute(ctx, "embed", func() error {
		var err error
		vector, err = r.inner.Embed(ctx, text)
		return err
	})
	return vector, err
}

func (r *retryClient) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	err := r.execute(ctx, "embed_many", func() error {
		var err error
		vectors, err = r.inner.EmbedMany(ctx, texts)
		return err
	})
	return vectors, err
}

func (r *retryClient) Caption(ctx context.Context, imagePath string) (string, error) {
	var caption string
	err := r.execute(ctx, "caption", func() error {
		var err error
		caption, err = r.inner.Caption(ctx, imagePath)
		return err
	})
	return caption, err
}

// execute runs fn with exponential backoff retry on transient errors.
func (r *retryClient) execute(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	delay := r.cfg.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		// Rate limit each attempt, retries included.
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("rate limit wait: %w", err)
			}
		}

		err := fn()
		if err == nil {
			if attempt > 0 {
				r.logger.Debug("provider call recovered",
					"op", op,
					"attempts", attempt+1,
					"elapsed", time.Since(start),
				)
			}
			return nil
		}

		lastErr = err

		// Non-transient errors fail immediately.
		if !IsTransient(err) {
			return err
		}

		if attempt == r.cfg.MaxRetries {
			break
		}

		r.logger.Debug("retrying provider call",
			"op", op,
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, r.cfg.MaxInterval)
		}
	}

	return fmt.Errorf("%s after %d retries (elapsed: %v): %w",
		op, r.cfg.MaxRetries, time.Since(start), lastErr)
}
