package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/core/tracing"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/growlog/growlog/db"
	"github.com/growlog/growlog/internal/classifier"
	"github.com/growlog/growlog/internal/config"
	"github.com/growlog/growlog/internal/knowledge"
	"github.com/growlog/growlog/internal/log"
	"github.com/growlog/growlog/internal/nutrition"
	"github.com/growlog/growlog/internal/pain"
	"github.com/growlog/growlog/internal/rag"
	"github.com/growlog/growlog/internal/synth"
	"github.com/growlog/growlog/internal/vision"
)

// Setup creates and initializes the application. Returns an App with
// embedded cleanup; call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.otelCleanup = provideOtelShutdown(ctx, cfg, logger)

	pool, dbCleanup, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.dbCleanup = dbCleanup
	a.DBPool = pool

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = knowledge.NewEmbedder(embedder, cfg.CallTimeout)

	a.KnowledgeStore, a.NutritionStore, err = provideStores(ctx, pool, cfg, logger)
	if err != nil {
		return nil, err
	}

	a.Retriever = rag.New(a.Embedder, a.KnowledgeStore, a.NutritionStore, logger)

	a.Synthesizer = synth.New(g, synth.Options{
		DefaultModel: cfg.ModelName,
		Timeout:      cfg.CallTimeout,
		Retry: synth.RetryConfig{
			MaxRetries:      cfg.MaxRetries,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     10 * time.Second,
		},
		RateLimit: cfg.ModelRateLimit,
		Logger:    logger,
	})

	a.Classifier, err = classifier.New(a.Synthesizer, cfg.ModelName, cfg.ClassifyTemperature, logger)
	if err != nil {
		return nil, err
	}
	a.Advisor = pain.New(a.Retriever, a.Synthesizer, cfg.AdviceModel, cfg.AdviceTemperature, cfg.RetrievalTopK, logger)
	a.Planner = nutrition.NewPlanner(a.Synthesizer, a.Retriever, cfg.ModelName, cfg.PlanTemperature, cfg.AdviceTemperature, logger)
	a.Bridge = vision.New(a.Synthesizer, a.Retriever, cfg.ModelName, logger)

	return a, nil
}

// provideOtelShutdown wires OTLP trace export before Genkit
// initialization so its TracerProvider picks the settings up. Tracing
// is optional: when no agent endpoint is configured, this is a no-op.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger log.Logger) func() {
	if cfg.OTLPAgentHost == "" {
		return func() {}
	}

	// SAFETY: os.Setenv is not concurrent-safe, but this runs exactly
	// once during startup before goroutines are spawned.
	if cfg.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	}
	if cfg.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.OTLPAgentHost),
		otlptracehttp.WithInsecure(), // local agent, no TLS
	)
	if err != nil {
		logger.Warn("creating trace exporter, tracing disabled", "error", err)
		return func() {}
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	logger.Debug("trace export enabled",
		"agent", cfg.OTLPAgentHost,
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
	)

	shutdown := tracing.TracerProvider().Shutdown

	//nolint:contextcheck // Independent context: shutdown runs during teardown when parent is canceled
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideGenkit initializes Genkit with the configured AI provider.
// Supports googleai (default) and openai.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	var g *genkit.Genkit

	switch cfg.Provider {
	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		logger.Info("initialized Genkit with openai provider", "model", cfg.ModelName)

	default: // googleai
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with googleai provider")
		}
		logger.Info("initialized Genkit with googleai provider", "model", cfg.ModelName)
	}

	return g, nil
}

// provideEmbedder looks up the embedder registered by the provider
// plugin. googleai registers via GoogleAIEmbedder; openai
// auto-registers in Init() and is looked up by name.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
	default: // googleai
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}

// provideDBPool runs migrations and creates the connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, func(), error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresURL())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, pool.Close, nil
}

// provideStores binds the two collections and makes sure they exist.
// Creation is idempotent; concurrent instances racing on the same DDL
// are tolerated.
func provideStores(ctx context.Context, pool *pgxpool.Pool, cfg *config.Config, logger log.Logger) (*knowledge.Store, *knowledge.Store, error) {
	kb, err := knowledge.NewStore(pool, cfg.KnowledgeCollection, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("knowledge store: %w", err)
	}
	nut, err := knowledge.NewStore(pool, cfg.NutritionCollection, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("nutrition store: %w", err)
	}

	for _, s := range []*knowledge.Store{kb, nut} {
		if err := s.EnsureCollection(ctx); err != nil {
			return nil, nil, fmt.Errorf("ensure collection %s: %w", s.Collection(), err)
		}
	}
	return kb, nut, nil
}
