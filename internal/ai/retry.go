package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/carebot/carebot/internal/log"
)

// RetryConfig configures the retry behavior for provider calls.
type RetryConfig struct {
	MaxRetries      int           // Maximum number of retry attempts
	InitialInterval time.Duration // Initial backoff interval
	MaxInterval     time.Duration // Maximum backoff interval
}

// DefaultRetryConfig returns sensible defaults for LLM API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// retryableError determines if an error should trigger a retry.
func retryableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()

	// Rate limit errors - always retry
	if containsAny(errStr, "rate limit", "quota exceeded", "429") {
		return true
	}

	// Transient server errors - retry
	if containsAny(errStr, "500", "502", "503", "504", "unavailable") {
		return true
	}

	// Network errors - retry
	if containsAny(errStr, "connection reset", "timeout", "temporary") {
		return true
	}

	return false
}

// containsAny checks if s contains any of the substrings (case-insensitive).
func containsAny(s string, substrs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

// withRetry executes fn with exponential backoff retry.
//
// Features:
//   - Rate limits EACH attempt (limiter may be nil)
//   - Tracks elapsed time for observability
//   - Exponential backoff with configurable max interval
//
// The returned error always wraps ErrProviderUnavailable once the policy is
// exhausted or a non-retryable provider error is hit, so callers can map it
// with errors.Is.
func withRetry[T any](
	ctx context.Context,
	cfg RetryConfig,
	limiter *rate.Limiter,
	logger log.Logger,
	op string,
	fn func(context.Context) (T, error),
) (T, error) {
	var zero T
	var lastErr error
	delay := cfg.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return zero, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		result, err := fn(ctx)
		if err == nil {
			logger.Debug("provider call succeeded",
				"op", op,
				"attempts", attempt+1,
				"elapsed", time.Since(start),
			)
			return result, nil
		}

		lastErr = err

		// Non-retryable error - fail immediately
		if !retryableError(err) {
			return zero, fmt.Errorf("%w: %s: %w", ErrProviderUnavailable, op, err)
		}

		// Last attempt - don't sleep
		if attempt == cfg.MaxRetries {
			break
		}

		logger.Debug("retrying provider call",
			"op", op,
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, cfg.MaxInterval)
		}
	}

	return zero, fmt.Errorf("%w: %s after %d retries (elapsed: %v): %w",
		ErrProviderUnavailable, op, cfg.MaxRetries, time.Since(start), lastErr)
}

// RetryingGenerator wraps a Generator with the bounded retry policy.
type RetryingGenerator struct {
	inner   Generator
	cfg     RetryConfig
	limiter *rate.Limiter
	logger  log.Logger
}

// NewRetryingGenerator wraps inner with retry/backoff and optional rate
// limiting (limiter may be nil for unlimited).
func NewRetryingGenerator(inner Generator, cfg RetryConfig, limiter *rate.Limiter, logger log.Logger) *RetryingGenerator {
	return &RetryingGenerator{inner: inner, cfg: cfg, limiter: limiter, logger: logger}
}

// Generate implements Generator.
func (r *RetryingGenerator) Generate(ctx context.Context, req *GenerateRequest) (*Reply, error) {
	return withRetry(ctx, r.cfg, r.limiter, r.logger, "generate", func(ctx context.Context) (*Reply, error) {
		return r.inner.Generate(ctx, req)
	})
}

// RetryingEmbedder wraps an Embedder with the bounded retry policy.
type RetryingEmbedder struct {
	inner   Embedder
	cfg     RetryConfig
	limiter *rate.Limiter
	logger  log.Logger
}

// NewRetryingEmbedder wraps inner with retry/backoff and optional rate limiting.
func NewRetryingEmbedder(inner Embedder, cfg RetryConfig, limiter *rate.Limiter, logger log.Logger) *RetryingEmbedder {
	return &RetryingEmbedder{inner: inner, cfg: cfg, limiter: limiter, logger: logger}
}

// Embed implements Embedder.
func (r *RetryingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return withRetry(ctx, r.cfg, r.limiter, r.logger, "embed", func(ctx context.Context) ([][]float32, error) {
		return r.inner.Embed(ctx, texts)
	})
}
