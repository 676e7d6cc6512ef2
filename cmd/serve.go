package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/carebot/carebot/api"
	"github.com/carebot/carebot/db"
	"github.com/carebot/carebot/internal/ai"
	"github.com/carebot/carebot/internal/chat"
	"github.com/carebot/carebot/internal/config"
	"github.com/carebot/carebot/internal/conversation"
	"github.com/carebot/carebot/internal/database"
	"github.com/carebot/carebot/internal/document"
	"github.com/carebot/carebot/internal/log"
	"github.com/carebot/carebot/internal/observability"
	"github.com/carebot/carebot/internal/tool"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe loads configuration, wires the application, and serves until
// SIGINT/SIGTERM.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{
		Level: log.LevelFromEnv(),
		JSON:  cfg.Environment != "dev",
	})
	logger.Info("starting carebot", "version", Version, "provider", cfg.Provider)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.TracingEnabled {
		shutdown, err := observability.Setup(ctx, cfg.ServiceName, cfg.OTLPEndpoint, logger)
		if err != nil {
			return fmt.Errorf("initializing tracing: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Warn("tracing shutdown error", "error", err)
			}
		}()
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	pool, err := database.Open(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	generator, embedder, err := buildProvider(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing provider: %w", err)
	}

	retryCfg := ai.RetryConfig{
		MaxRetries:      cfg.MaxRetries,
		InitialInterval: cfg.RetryInitialInterval(),
		MaxInterval:     cfg.RetryMaxInterval(),
	}
	var limiter *rate.Limiter
	if cfg.ProviderRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.ProviderRateLimit), cfg.ProviderRateBurst)
	}
	generator = ai.NewRetryingGenerator(generator, retryCfg, limiter, logger)
	embedder = ai.NewRetryingEmbedder(embedder, retryCfg, limiter, logger)

	conversations := conversation.NewStore(pool, logger)
	documents := document.NewService(
		document.NewStore(pool, logger),
		embedder,
		cfg.ChunkSize, cfg.ChunkOverlap,
		logger,
	)

	registry := tool.NewRegistry(logger)
	if err := tool.RegisterBuiltins(registry); err != nil {
		return fmt.Errorf("registering tools: %w", err)
	}

	engine := chat.NewEngine(conversations, documents, generator, registry, chat.Config{
		RetrievalK:    cfg.RetrievalK,
		MaxToolRounds: cfg.MaxToolRounds,
		Disclaimer:    cfg.Disclaimer,
	}, logger)

	server := api.NewServer(pool, conversations, documents, engine, logger)
	return server.Run(ctx, cfg.HTTPAddr)
}

// buildProvider constructs the configured LLM/embedding provider.
// API keys are read straight from the environment so they never pass through
// configuration files.
func buildProvider(ctx context.Context, cfg *config.Config, logger log.Logger) (ai.Generator, ai.Embedder, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		g, err := ai.NewGemini(ctx, os.Getenv("GEMINI_API_KEY"), cfg.GeminiModel, cfg.EmbeddingModel, logger)
		if err != nil {
			return nil, nil, err
		}
		return g, g, nil
	default:
		o := ai.NewOpenAI(
			os.Getenv("OPENAI_API_KEY"),
			os.Getenv("OPENAI_BASE_URL"),
			cfg.OpenAIModel, cfg.EmbeddingModel,
			logger,
		)
		return o, o, nil
	}
}
