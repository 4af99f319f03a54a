package admin

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/quotedesk/internal/config"
	"github.com/cloo-solutions/quotedesk/internal/database"
	"github.com/cloo-solutions/quotedesk/internal/gemini"
	"github.com/cloo-solutions/quotedesk/internal/generation"
	"github.com/cloo-solutions/quotedesk/internal/logging"
	"github.com/cloo-solutions/quotedesk/internal/ollama"
	"github.com/cloo-solutions/quotedesk/internal/openai"
	"github.com/cloo-solutions/quotedesk/internal/repository"
	"github.com/cloo-solutions/quotedesk/internal/service"
	"github.com/cloo-solutions/quotedesk/internal/storage"
	"github.com/cloo-solutions/quotedesk/internal/vectorindex"
	"github.com/jackc/pgx/v5/pgxpool"
	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// runtime holds what every server-side command needs: configuration, the
// process logger and a database pool.
type runtime struct {
	cfg    *config.Config
	logger *zap.Logger
	pool   *pgxpool.Pool
}

// setup loads configuration, installs the logger, optionally migrates the
// schema and opens the pool. Migrations run first because registering the
// vector type needs the extension.
func setup(ctx context.Context, migrate bool) (*runtime, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Debug)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	logging.SetDefault(logger)

	if migrate {
		if err := database.Migrate(cfg.DatabaseURL, database.DefaultMigrationsSource); err != nil {
			_ = logger.Sync()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL, RegisterVector: true})
	if err != nil {
		_ = logger.Sync()
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.Info("connected to database")

	cleanup := func() {
		pool.Close()
		_ = logger.Sync()
	}
	return &runtime{cfg: cfg, logger: logger, pool: pool}, cleanup, nil
}

// embedder builds the configured embedding provider.
func (rt *runtime) embedder() (service.Embedder, error) {
	switch rt.cfg.EmbeddingProvider {
	case config.EmbeddingProviderOpenAI:
		model := rt.cfg.EmbeddingModel
		if model == ollama.DefaultEmbeddingModel {
			model = ""
		}
		return openai.NewClient(openai.Config{
			APIKey:              rt.cfg.OpenAIAPIKey,
			EmbeddingModel:      goopenai.EmbeddingModel(model),
			EmbeddingDimensions: rt.cfg.EmbeddingDimensions,
		})
	default:
		return rt.ollama(), nil
	}
}

func (rt *runtime) ollama() *ollama.Client {
	return ollama.NewClient(ollama.Config{
		Host:                rt.cfg.OllamaHost,
		EmbeddingModel:      rt.cfg.EmbeddingModel,
		EmbeddingDimensions: rt.cfg.EmbeddingDimensions,
		LLMModel:            rt.cfg.LLMModel,
		Temperature:         rt.cfg.LLMTemperature,
	})
}

func (rt *runtime) vectorIndex() *vectorindex.Client {
	return vectorindex.NewClient(rt.cfg.FaissURL, rt.cfg.VectorSearchTimeout)
}

// searcher returns the nearest-neighbour backend named by VECTOR_BACKEND.
func (rt *runtime) searcher() service.VectorSearcher {
	if rt.cfg.UsesPGVector() {
		return repository.NewChunkRepository(rt.pool)
	}
	return rt.vectorIndex()
}

// generator builds the fallback chain. Without a Gemini key only the local
// model answers.
func (rt *runtime) generator(ctx context.Context) (*generation.Chain, error) {
	var primary, primaryAlt generation.Provider
	if rt.cfg.HasGemini() {
		limiter := gemini.NewLimiter(rt.cfg.GeminiRateLimit)
		base := gemini.Config{
			APIKey:      rt.cfg.GeminiAPIKey,
			Model:       rt.cfg.GeminiModel,
			APIVersion:  rt.cfg.GeminiAPIVersion,
			Temperature: rt.cfg.LLMTemperature,
		}
		p, err := gemini.New(ctx, base, limiter)
		if err != nil {
			return nil, err
		}
		primary = p

		if alt := rt.cfg.GeminiAltAPIVersion; alt != "" && alt != base.APIVersion {
			base.APIVersion = alt
			a, err := gemini.New(ctx, base, limiter)
			if err != nil {
				return nil, err
			}
			primaryAlt = a
		}
	} else {
		rt.logger.Warn("GEMINI_API_KEY not set, answering with the local model only")
	}

	return generation.NewChain(primary, primaryAlt, rt.ollama(), rt.cfg.Generation()), nil
}

func (rt *runtime) s3Client(ctx context.Context) (*storage.S3Client, error) {
	if !rt.cfg.HasS3() {
		return nil, fmt.Errorf("S3 source requires S3_ENDPOINT, S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY")
	}
	return storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        rt.cfg.S3Endpoint,
		Region:          rt.cfg.S3Region,
		AccessKeyID:     rt.cfg.S3AccessKey,
		SecretAccessKey: rt.cfg.S3SecretKey,
		Bucket:          rt.cfg.S3Bucket,
		UsePathStyle:    true,
	})
}
