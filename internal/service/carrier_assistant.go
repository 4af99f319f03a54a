package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cloo-solutions/quotedesk/internal/domain"
	"github.com/cloo-solutions/quotedesk/internal/logging"
	"github.com/cloo-solutions/quotedesk/internal/telemetry"
	"go.uber.org/zap"
)

// NotFoundMessage is returned as the conditions text when no indexed
// guideline matches the question's filters.
const NotFoundMessage = "Refer: the information is not found in the indexed guidelines for this carrier, line of business and state."

// PipelineConfig holds the carrier assistant tuning knobs.
type PipelineConfig struct {
	// TopK is the number of chunks kept after reranking.
	TopK int
	// CandidateMultiplier scales TopK into the vector search fetch size.
	CandidateMultiplier int
	// RerankAlpha weights keyword overlap against vector similarity.
	RerankAlpha float64
	// MaxContextChunks bounds the context block. Zero means TopK.
	MaxContextChunks int

	EmbeddingTimeout    time.Duration
	VectorSearchTimeout time.Duration
	MetadataTimeout     time.Duration
}

// DefaultPipelineConfig returns the settings the assistant ships with.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		TopK:                5,
		CandidateMultiplier: 5,
		RerankAlpha:         0.02,
		EmbeddingTimeout:    30 * time.Second,
		VectorSearchTimeout: 15 * time.Second,
		MetadataTimeout:     10 * time.Second,
	}
}

// CandidateCount is the vector search fetch size.
func (c PipelineConfig) CandidateCount() int {
	n := c.TopK * c.CandidateMultiplier
	if n < c.TopK {
		return c.TopK
	}
	return n
}

func (c PipelineConfig) contextLimit() int {
	if c.MaxContextChunks > 0 {
		return c.MaxContextChunks
	}
	return c.TopK
}

// Embedder turns text into a query vector.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher returns nearest-neighbour candidates ordered by descending
// score.
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, topK int) ([]domain.Candidate, error)
}

// ChunkLoader loads the chunks among ids that satisfy filter. Order of the
// returned slice is not significant.
type ChunkLoader interface {
	LoadByIDs(ctx context.Context, ids []string, filter ChunkFilter) ([]*domain.Chunk, error)
}

// Generator produces one grounded answer text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*domain.Generation, error)
}

// AskInput is a question scoped to business dimensions.
type AskInput struct {
	Question string
	Filters  domain.Filters
}

// Validate checks that the required fields are present.
func (in AskInput) Validate() error {
	if strings.TrimSpace(in.Filters.Carrier) == "" ||
		strings.TrimSpace(in.Filters.LOB) == "" ||
		strings.TrimSpace(in.Filters.State) == "" ||
		strings.TrimSpace(in.Question) == "" {
		return domain.ErrMissingRequiredField
	}
	return nil
}

// CarrierAssistantService answers eligibility questions from indexed carrier
// guidelines.
type CarrierAssistantService struct {
	embedder  Embedder
	searcher  VectorSearcher
	loader    ChunkLoader
	generator Generator
	cfg       PipelineConfig
}

func NewCarrierAssistantService(
	embedder Embedder,
	searcher VectorSearcher,
	loader ChunkLoader,
	generator Generator,
	cfg PipelineConfig,
) *CarrierAssistantService {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultPipelineConfig().TopK
	}
	if cfg.CandidateMultiplier <= 0 {
		cfg.CandidateMultiplier = DefaultPipelineConfig().CandidateMultiplier
	}
	return &CarrierAssistantService{
		embedder:  embedder,
		searcher:  searcher,
		loader:    loader,
		generator: generator,
		cfg:       cfg,
	}
}

// Config returns the settings the service was built with.
func (s *CarrierAssistantService) Config() PipelineConfig {
	return s.cfg
}

// Ask runs the retrieval pipeline for one question. Retrieval failures are
// returned as *domain.RetrievalError and generation failures as
// *domain.GenerationError; a question with no matching guidelines yields a
// Refer answer and no error.
func (s *CarrierAssistantService) Ask(ctx context.Context, in AskInput) (*domain.AnswerResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "carrier_assistant.ask", telemetry.SpanAttributes{
		Carrier:   in.Filters.Carrier,
		LOB:       in.Filters.LOB,
		State:     in.Filters.State,
		Operation: "ask",
	})
	defer span.End()

	filter := NewChunkFilter(in.Filters)
	logger := logging.FromContext(ctx).With(
		zap.String("carrier", filter.Carrier),
		zap.String("lob", filter.LOB),
		zap.String("state", filter.State),
		zap.String("program", filter.Program),
		zap.String("version", filter.Version),
	)
	start := time.Now()

	embedStart := time.Now()
	vector, err := s.embed(ctx, in.Question)
	embeddingMS := time.Since(embedStart).Milliseconds()
	if err != nil {
		return nil, s.fail(ctx, span, logger, err, start)
	}

	retrievalStart := time.Now()
	ranked, err := s.retrieve(ctx, vector, filter)
	retrievalMS := time.Since(retrievalStart).Milliseconds()
	if err != nil {
		return nil, s.fail(ctx, span, logger, err, start)
	}

	top := Rerank(ranked, in.Question, s.cfg.RerankAlpha, s.cfg.TopK)
	if len(top) == 0 {
		logger.Info("carrier assistant found no matching chunks",
			zap.Int64("embedding_ms", embeddingMS),
			zap.Int64("retrieval_ms", retrievalMS),
			zap.Int64("total_ms", time.Since(start).Milliseconds()),
		)
		return domain.ReferResult(NotFoundMessage), nil
	}

	used := top
	if limit := s.cfg.contextLimit(); len(used) > limit {
		used = used[:limit]
	}
	prompt := BuildPrompt(in.Question, BuildContext(used, 0))

	llmStart := time.Now()
	gen, err := s.generate(ctx, prompt)
	llmMS := time.Since(llmStart).Milliseconds()
	if err != nil {
		return nil, s.fail(ctx, span, logger, err, start)
	}

	result := BuildAnswer(gen.Text, used)
	span.SetTag("answer", string(result.Answer))
	span.SetTag("provider", gen.Provider)
	logger.Info("carrier assistant answered",
		zap.String("answer", string(result.Answer)),
		zap.String("provider", gen.Provider),
		zap.String("step", gen.Step),
		zap.Int("candidates", len(ranked)),
		zap.Int("context_chunks", len(used)),
		zap.Int64("embedding_ms", embeddingMS),
		zap.Int64("retrieval_ms", retrievalMS),
		zap.Int64("llm_ms", llmMS),
		zap.Int64("total_ms", time.Since(start).Milliseconds()),
	)
	return result, nil
}

func (s *CarrierAssistantService) embed(ctx context.Context, question string) ([]float32, error) {
	ctx, span := telemetry.StartSpan(ctx, "carrier_assistant.embed", telemetry.SpanAttributes{Operation: domain.StageEmbedding})
	defer span.End()

	ctx, cancel := withTimeout(ctx, s.cfg.EmbeddingTimeout)
	defer cancel()

	vector, err := s.embedder.GenerateEmbedding(ctx, strings.TrimSpace(question))
	if err != nil {
		return nil, domain.NewRetrievalError(domain.StageEmbedding, err)
	}
	return vector, nil
}

// retrieve runs vector search and the metadata filter, returning surviving
// chunks in vector search order.
func (s *CarrierAssistantService) retrieve(ctx context.Context, vector []float32, filter ChunkFilter) ([]RankedChunk, error) {
	fetch := s.cfg.CandidateCount()

	searchCtx, span := telemetry.StartSpan(ctx, "carrier_assistant.vector_search", telemetry.SpanAttributes{Operation: domain.StageVectorSearch})
	searchCtx, cancel := withTimeout(searchCtx, s.cfg.VectorSearchTimeout)
	candidates, err := s.searcher.Search(searchCtx, vector, fetch)
	cancel()
	span.End()
	if err != nil {
		return nil, domain.NewRetrievalError(domain.StageVectorSearch, err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ID)
	}

	loadCtx, span := telemetry.StartSpan(ctx, "carrier_assistant.load_chunks", telemetry.SpanAttributes{Operation: domain.StageMetadata})
	loadCtx, cancel = withTimeout(loadCtx, s.cfg.MetadataTimeout)
	chunks, err := s.loader.LoadByIDs(loadCtx, ids, filter)
	cancel()
	span.End()
	if err != nil {
		return nil, domain.NewRetrievalError(domain.StageMetadata, err)
	}

	// Only chunks matching every applied filter may reach the context.
	matching := chunks[:0:0]
	for _, c := range chunks {
		if filter.Matches(c) {
			matching = append(matching, c)
		}
	}

	return orderByCandidates(candidates, matching, fetch), nil
}

func (s *CarrierAssistantService) generate(ctx context.Context, prompt string) (*domain.Generation, error) {
	ctx, span := telemetry.StartSpan(ctx, "carrier_assistant.generate", telemetry.SpanAttributes{Operation: "generation"})
	defer span.End()

	gen, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	if gen == nil {
		return nil, &domain.GenerationError{Secondary: errNoGeneration}
	}
	return gen, nil
}

func (s *CarrierAssistantService) fail(ctx context.Context, span *telemetry.Span, logger *zap.Logger, err error, start time.Time) error {
	span.SetError(err)
	telemetry.AddBreadcrumb(ctx, "carrier_assistant", err.Error())
	logger.Error("carrier assistant failed",
		zap.String("stage", failureStage(err)),
		zap.Int64("total_ms", time.Since(start).Milliseconds()),
		zap.Error(err),
	)
	return err
}

var errNoGeneration = errors.New("generator returned no text")

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func failureStage(err error) string {
	var retrievalErr *domain.RetrievalError
	if errors.As(err, &retrievalErr) {
		return retrievalErr.Stage
	}
	return "generation"
}
