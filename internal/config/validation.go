package config

import (
	"errors"
	"fmt"
	"os"
)

// Sentinel errors for configuration validation.
// Wrap with context using fmt.Errorf("%w: details", ErrXxx) and check with errors.Is().
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidProvider indicates the LLM provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidChunking indicates the chunk size/overlap combination is invalid.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidRetrievalK indicates the retrieval k value is out of range.
	ErrInvalidRetrievalK = errors.New("invalid retrieval k")

	// ErrInvalidToolRounds indicates the tool round cap is out of range.
	ErrInvalidToolRounds = errors.New("invalid tool round cap")

	// ErrInvalidRetry indicates the retry policy values are out of range.
	ErrInvalidRetry = errors.New("invalid retry configuration")

	// ErrInvalidEmbeddingDimension indicates the embedding dimension is out of range.
	ErrInvalidEmbeddingDimension = errors.New("invalid embedding dimension")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is empty.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")
)

// Bounds for validated values.
const (
	MinChunkSize     = 50
	MaxChunkSize     = 8192
	MaxRetrievalK    = 50
	MaxToolRoundsCap = 10
	MaxRetriesCap    = 10
)

// Validate performs fail-fast validation of the configuration.
// All checks run so the error message names the first offending field; the
// caller treats any error as fatal at startup.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Provider {
	case ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY not set (required for provider %q)", ErrMissingAPIKey, c.Provider)
		}
	case ProviderGemini:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY not set (required for provider %q)", ErrMissingAPIKey, c.Provider)
		}
	default:
		return fmt.Errorf("%w: %q (expected %q or %q)", ErrInvalidProvider, c.Provider, ProviderOpenAI, ProviderGemini)
	}

	if c.ChunkSize < MinChunkSize || c.ChunkSize > MaxChunkSize {
		return fmt.Errorf("%w: chunk_size %d not in [%d, %d]", ErrInvalidChunking, c.ChunkSize, MinChunkSize, MaxChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap %d must be in [0, chunk_size)", ErrInvalidChunking, c.ChunkOverlap)
	}
	if c.RetrievalK < 1 || c.RetrievalK > MaxRetrievalK {
		return fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidRetrievalK, c.RetrievalK, MaxRetrievalK)
	}
	if c.MaxToolRounds < 1 || c.MaxToolRounds > MaxToolRoundsCap {
		return fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidToolRounds, c.MaxToolRounds, MaxToolRoundsCap)
	}
	if c.MaxRetries < 0 || c.MaxRetries > MaxRetriesCap {
		return fmt.Errorf("%w: max_retries %d not in [0, %d]", ErrInvalidRetry, c.MaxRetries, MaxRetriesCap)
	}
	if c.RetryInitialMillis <= 0 || c.RetryMaxMillis < c.RetryInitialMillis {
		return fmt.Errorf("%w: retry intervals initial=%dms max=%dms", ErrInvalidRetry, c.RetryInitialMillis, c.RetryMaxMillis)
	}
	if c.EmbeddingDimension < 1 || c.EmbeddingDimension > 4096 {
		return fmt.Errorf("%w: %d not in [1, 4096]", ErrInvalidEmbeddingDimension, c.EmbeddingDimension)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name is empty", ErrInvalidPostgresDBName)
	}

	return nil
}
