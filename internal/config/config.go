package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/cloo-solutions/quotedesk/internal/generation"
	"github.com/cloo-solutions/quotedesk/internal/service"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	EmbeddingProviderOllama = "ollama"
	EmbeddingProviderOpenAI = "openai"

	VectorBackendFaiss    = "faiss"
	VectorBackendPGVector = "pgvector"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Debug       bool   `envconfig:"DEBUG" default:"false"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	EmbeddingProvider   string `envconfig:"EMBEDDING_PROVIDER" default:"ollama"`
	OllamaHost          string `envconfig:"OLLAMA_HOST" default:"http://localhost:11434"`
	EmbeddingModel      string `envconfig:"EMBEDDING_MODEL" default:"nomic-embed-text"`
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"768"`
	OpenAIAPIKey        string `envconfig:"OPENAI_API_KEY"`

	VectorBackend string `envconfig:"VECTOR_BACKEND" default:"faiss"`
	FaissURL      string `envconfig:"FAISS_URL" default:"http://localhost:8000"`

	GeminiAPIKey        string  `envconfig:"GEMINI_API_KEY"`
	GeminiModel         string  `envconfig:"GEMINI_MODEL" default:"gemini-1.5-flash"`
	GeminiAPIVersion    string  `envconfig:"GEMINI_API_VERSION" default:"v1"`
	GeminiAltAPIVersion string  `envconfig:"GEMINI_ALT_API_VERSION" default:"v1beta"`
	GeminiRateLimit     float64 `envconfig:"GEMINI_RATE_LIMIT" default:"0"`
	LLMModel            string  `envconfig:"LLM_MODEL" default:"llama3.1:8b"`
	LLMTemperature      float32 `envconfig:"LLM_TEMPERATURE" default:"0.2"`

	RateLimitBackoff time.Duration `envconfig:"RATE_LIMIT_BACKOFF" default:"5s"`

	TopK                int     `envconfig:"TOP_K" default:"5"`
	CandidateMultiplier int     `envconfig:"CANDIDATE_MULTIPLIER" default:"5"`
	RerankAlpha         float64 `envconfig:"RERANK_ALPHA" default:"0.02"`
	MaxContextChunks    int     `envconfig:"MAX_CONTEXT_CHUNKS" default:"0"`

	EmbeddingTimeout    time.Duration `envconfig:"EMBEDDING_TIMEOUT" default:"30s"`
	VectorSearchTimeout time.Duration `envconfig:"VECTOR_SEARCH_TIMEOUT" default:"15s"`
	MetadataTimeout     time.Duration `envconfig:"METADATA_TIMEOUT" default:"10s"`
	GenerationTimeout   time.Duration `envconfig:"GENERATION_TIMEOUT" default:"120s"`

	DocsRoot    string `envconfig:"DOCS_ROOT"`
	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"quotedesk-guidelines"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	IndexSyncInterval time.Duration `envconfig:"INDEX_SYNC_INTERVAL" default:"0"`
	IndexSyncBatch    int           `envconfig:"INDEX_SYNC_BATCH" default:"100"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("QUOTEDESK", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects backend names and pipeline sizes that cannot work.
func (c *Config) Validate() error {
	switch strings.ToLower(c.EmbeddingProvider) {
	case EmbeddingProviderOllama:
	case EmbeddingProviderOpenAI:
		if !c.HasOpenAI() {
			return fmt.Errorf("EMBEDDING_PROVIDER=openai requires OPENAI_API_KEY")
		}
	default:
		return fmt.Errorf("unknown EMBEDDING_PROVIDER %q", c.EmbeddingProvider)
	}

	switch strings.ToLower(c.VectorBackend) {
	case VectorBackendFaiss, VectorBackendPGVector:
	default:
		return fmt.Errorf("unknown VECTOR_BACKEND %q", c.VectorBackend)
	}

	if c.TopK <= 0 {
		return fmt.Errorf("TOP_K must be positive, got %d", c.TopK)
	}
	if c.CandidateMultiplier <= 0 {
		return fmt.Errorf("CANDIDATE_MULTIPLIER must be positive, got %d", c.CandidateMultiplier)
	}
	if c.RerankAlpha < 0 {
		return fmt.Errorf("RERANK_ALPHA cannot be negative")
	}
	return nil
}

// Pipeline returns the carrier assistant settings derived from the
// environment.
func (c *Config) Pipeline() service.PipelineConfig {
	return service.PipelineConfig{
		TopK:                c.TopK,
		CandidateMultiplier: c.CandidateMultiplier,
		RerankAlpha:         c.RerankAlpha,
		MaxContextChunks:    c.MaxContextChunks,
		EmbeddingTimeout:    c.EmbeddingTimeout,
		VectorSearchTimeout: c.VectorSearchTimeout,
		MetadataTimeout:     c.MetadataTimeout,
	}
}

// Generation returns the fallback chain settings.
func (c *Config) Generation() generation.Config {
	return generation.Config{
		RateLimitBackoff: c.RateLimitBackoff,
		AttemptTimeout:   c.GenerationTimeout,
	}
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

// HasGemini reports whether the hosted primary generation provider is
// configured. Without it only the local model answers.
func (c *Config) HasGemini() bool {
	return c.GeminiAPIKey != ""
}

func (c *Config) UsesPGVector() bool {
	return strings.EqualFold(c.VectorBackend, VectorBackendPGVector)
}
