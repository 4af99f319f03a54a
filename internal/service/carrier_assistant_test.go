package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/cloo-solutions/quotedesk/internal/domain"
	"github.com/cloo-solutions/quotedesk/internal/generation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

type MockVectorSearcher struct {
	mock.Mock
}

func (m *MockVectorSearcher) Search(ctx context.Context, vector []float32, topK int) ([]domain.Candidate, error) {
	args := m.Called(ctx, vector, topK)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Candidate), args.Error(1)
}

type MockChunkLoader struct {
	mock.Mock
}

func (m *MockChunkLoader) LoadByIDs(ctx context.Context, ids []string, filter ChunkFilter) ([]*domain.Chunk, error) {
	args := m.Called(ctx, ids, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Chunk), args.Error(1)
}

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, prompt string) (*domain.Generation, error) {
	args := m.Called(ctx, prompt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Generation), args.Error(1)
}

// fixtureStore is an in-memory ChunkLoader that applies filters the way the
// database does.
type fixtureStore struct {
	chunks []*domain.Chunk
	calls  int
}

func (s *fixtureStore) LoadByIDs(_ context.Context, ids []string, filter ChunkFilter) ([]*domain.Chunk, error) {
	s.calls++
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []*domain.Chunk
	// Reverse order so callers cannot rely on loader order.
	for i := len(s.chunks) - 1; i >= 0; i-- {
		c := s.chunks[i]
		if want[c.ID] && filter.Matches(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

type staticProvider struct {
	name  string
	text  string
	err   error
	calls int
}

func (p *staticProvider) Name() string { return p.name }

func (p *staticProvider) Complete(context.Context, string) (string, error) {
	p.calls++
	return p.text, p.err
}

var (
	queryVector = []float32{0.1, 0.2, 0.3}

	wellingtonTX = &domain.Chunk{ID: "tx-1", DocID: "doc-tx", DocName: "Wellington HO TX.pdf", Carrier: "Wellington", LOB: "HO", State: "TX", Page: "2", Text: "Roofs older than 15 years are ineligible in Texas."}
	wellingtonFL = &domain.Chunk{ID: "fl-1", DocID: "doc-fl", DocName: "Wellington HO FL.pdf", Carrier: "Wellington", LOB: "HO", State: "FL", Program: "HO3", Version: "2024", Page: "7", Text: "Roofs older than 20 years require inspection in Florida."}
	wellingtonFL2 = &domain.Chunk{ID: "fl-2", DocID: "doc-fl", DocName: "Wellington HO FL.pdf", Carrier: "Wellington", LOB: "HO", State: "FL", Program: "HO5", Version: "2023", Page: "9", Text: "Pools require a screened enclosure."}
)

func flQuestion() AskInput {
	return AskInput{
		Question: "Is a 20 year old roof eligible?",
		Filters:  domain.Filters{Carrier: "Wellington", LOB: "HO", State: "FL"},
	}
}

func testPipelineConfig() PipelineConfig {
	cfg := DefaultPipelineConfig()
	cfg.EmbeddingTimeout = time.Second
	cfg.VectorSearchTimeout = time.Second
	cfg.MetadataTimeout = time.Second
	return cfg
}

func TestAsk_RoundTrip(t *testing.T) {
	embedder := new(MockEmbedder)
	searcher := new(MockVectorSearcher)
	generator := new(MockGenerator)
	store := &fixtureStore{chunks: []*domain.Chunk{wellingtonFL}}

	embedder.On("GenerateEmbedding", mock.Anything, "Is a 20 year old roof eligible?").Return(queryVector, nil)
	searcher.On("Search", mock.Anything, queryVector, 25).Return([]domain.Candidate{{ID: "fl-1", Score: 0.88}}, nil)
	generator.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "[#1 Wellington HO FL.pdf p.7] Roofs older than 20 years")
	})).Return(&domain.Generation{Text: "Answer: Yes\n- Condition A [#1]", Provider: "ollama"}, nil)

	svc := NewCarrierAssistantService(embedder, searcher, store, generator, testPipelineConfig())
	res, err := svc.Ask(context.Background(), flQuestion())

	require.NoError(t, err)
	assert.Equal(t, domain.LabelYes, res.Answer)
	assert.Equal(t, "Answer: Yes\n- Condition A [#1]", res.Conditions)
	require.Len(t, res.Sources, 1)
	assert.Equal(t, domain.Source{Doc: "Wellington HO FL.pdf", Page: "p.7", Snippet: wellingtonFL.Text, Tag: "#1"}, res.Sources[0])
	require.Len(t, res.Retrieved, 1)
	assert.Equal(t, "fl-1", res.Retrieved[0].ID)
	assert.InDelta(t, 0.88, res.Retrieved[0].Score, 1e-9)

	embedder.AssertExpectations(t)
	searcher.AssertExpectations(t)
	generator.AssertExpectations(t)
}

func TestAsk_EmptyCandidatesRefers(t *testing.T) {
	embedder := new(MockEmbedder)
	searcher := new(MockVectorSearcher)
	loader := new(MockChunkLoader)
	generator := new(MockGenerator)

	embedder.On("GenerateEmbedding", mock.Anything, mock.Anything).Return(queryVector, nil)
	searcher.On("Search", mock.Anything, queryVector, 25).Return([]domain.Candidate{}, nil)

	svc := NewCarrierAssistantService(embedder, searcher, loader, generator, testPipelineConfig())
	res, err := svc.Ask(context.Background(), flQuestion())

	require.NoError(t, err)
	assert.Equal(t, domain.LabelRefer, res.Answer)
	assert.Equal(t, NotFoundMessage, res.Conditions)
	assert.NotNil(t, res.Sources)
	assert.Empty(t, res.Sources)
	assert.NotNil(t, res.Retrieved)
	assert.Empty(t, res.Retrieved)
	loader.AssertNotCalled(t, "LoadByIDs", mock.Anything, mock.Anything, mock.Anything)
	generator.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestAsk_FilterExcludesTopMatchFromOtherState(t *testing.T) {
	embedder := new(MockEmbedder)
	searcher := new(MockVectorSearcher)
	generator := new(MockGenerator)
	store := &fixtureStore{chunks: []*domain.Chunk{wellingtonTX, wellingtonFL}}

	embedder.On("GenerateEmbedding", mock.Anything, mock.Anything).Return(queryVector, nil)
	searcher.On("Search", mock.Anything, queryVector, 25).Return([]domain.Candidate{
		{ID: "tx-1", Score: 0.99},
		{ID: "fl-1", Score: 0.60},
	}, nil)
	generator.On("Generate", mock.Anything, mock.Anything).Return(&domain.Generation{Text: "Answer: Refer"}, nil)

	svc := NewCarrierAssistantService(embedder, searcher, store, generator, testPipelineConfig())
	res, err := svc.Ask(context.Background(), flQuestion())

	require.NoError(t, err)
	require.Len(t, res.Retrieved, 1)
	assert.Equal(t, "fl-1", res.Retrieved[0].ID)
}

func TestAsk_LoaderResultsOutsideFilterAreDropped(t *testing.T) {
	embedder := new(MockEmbedder)
	searcher := new(MockVectorSearcher)
	loader := new(MockChunkLoader)
	generator := new(MockGenerator)

	embedder.On("GenerateEmbedding", mock.Anything, mock.Anything).Return(queryVector, nil)
	searcher.On("Search", mock.Anything, queryVector, 25).Return([]domain.Candidate{{ID: "tx-1", Score: 0.99}}, nil)
	loader.On("LoadByIDs", mock.Anything, []string{"tx-1"}, mock.Anything).Return([]*domain.Chunk{wellingtonTX}, nil)

	svc := NewCarrierAssistantService(embedder, searcher, loader, generator, testPipelineConfig())
	res, err := svc.Ask(context.Background(), flQuestion())

	require.NoError(t, err)
	assert.Equal(t, domain.LabelRefer, res.Answer)
	generator.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestAsk_SentinelFiltersEqualOmitted(t *testing.T) {
	run := func(program, version string) *domain.AnswerResult {
		embedder := new(MockEmbedder)
		searcher := new(MockVectorSearcher)
		generator := new(MockGenerator)
		store := &fixtureStore{chunks: []*domain.Chunk{wellingtonFL, wellingtonFL2}}

		embedder.On("GenerateEmbedding", mock.Anything, mock.Anything).Return(queryVector, nil)
		searcher.On("Search", mock.Anything, queryVector, 25).Return([]domain.Candidate{
			{ID: "fl-2", Score: 0.9},
			{ID: "fl-1", Score: 0.8},
		}, nil)
		generator.On("Generate", mock.Anything, mock.Anything).Return(&domain.Generation{Text: "Answer: No"}, nil)

		in := flQuestion()
		in.Filters.Program = program
		in.Filters.Version = version
		res, err := NewCarrierAssistantService(embedder, searcher, store, generator, testPipelineConfig()).Ask(context.Background(), in)
		require.NoError(t, err)
		return res
	}

	omitted := run("", "")
	require.Len(t, omitted.Retrieved, 2)
	assert.Equal(t, omitted, run("Select", "Latest"))
	assert.Equal(t, omitted, run("Latest", "Select"))
	assert.Equal(t, omitted, run("  ", ""))

	filtered := run("HO3", "")
	require.Len(t, filtered.Retrieved, 1)
	assert.Equal(t, "fl-1", filtered.Retrieved[0].ID)
}

func TestAsk_RerankBoundsContext(t *testing.T) {
	embedder := new(MockEmbedder)
	searcher := new(MockVectorSearcher)
	generator := new(MockGenerator)

	var chunks []*domain.Chunk
	var candidates []domain.Candidate
	for i, id := range []string{"a", "b", "c", "d"} {
		chunks = append(chunks, &domain.Chunk{ID: id, DocID: "doc", Carrier: "Wellington", LOB: "HO", State: "FL", Text: "text " + id})
		candidates = append(candidates, domain.Candidate{ID: id, Score: 0.9 - float64(i)*0.1})
	}
	chunks[3].Text = "roof roof roof eligible year old"
	store := &fixtureStore{chunks: chunks}

	cfg := testPipelineConfig()
	cfg.TopK = 2
	cfg.CandidateMultiplier = 2
	cfg.RerankAlpha = 0.1

	embedder.On("GenerateEmbedding", mock.Anything, mock.Anything).Return(queryVector, nil)
	searcher.On("Search", mock.Anything, queryVector, 4).Return(candidates, nil)
	generator.On("Generate", mock.Anything, mock.Anything).Return(&domain.Generation{Text: "Answer: Yes"}, nil)

	res, err := NewCarrierAssistantService(embedder, searcher, store, generator, cfg).Ask(context.Background(), flQuestion())

	require.NoError(t, err)
	require.Len(t, res.Retrieved, 2)
	assert.Equal(t, "d", res.Retrieved[0].ID)
	assert.Equal(t, "a", res.Retrieved[1].ID)
	assert.Equal(t, "#2", res.Sources[1].Tag)
}

func TestAsk_MaxContextChunks(t *testing.T) {
	embedder := new(MockEmbedder)
	searcher := new(MockVectorSearcher)
	generator := new(MockGenerator)
	store := &fixtureStore{chunks: []*domain.Chunk{wellingtonFL, wellingtonFL2}}

	cfg := testPipelineConfig()
	cfg.MaxContextChunks = 1

	embedder.On("GenerateEmbedding", mock.Anything, mock.Anything).Return(queryVector, nil)
	searcher.On("Search", mock.Anything, queryVector, 25).Return([]domain.Candidate{{ID: "fl-1", Score: 0.9}, {ID: "fl-2", Score: 0.8}}, nil)
	generator.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "[#1 ") && !strings.Contains(p, "[#2 ")
	})).Return(&domain.Generation{Text: "Answer: Yes"}, nil)

	res, err := NewCarrierAssistantService(embedder, searcher, store, generator, cfg).Ask(context.Background(), flQuestion())

	require.NoError(t, err)
	assert.Len(t, res.Sources, 1)
	generator.AssertExpectations(t)
}

func TestAsk_StageErrors(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name  string
		setup func(e *MockEmbedder, s *MockVectorSearcher, l *MockChunkLoader)
		stage string
	}{
		{
			name: "embedding",
			setup: func(e *MockEmbedder, _ *MockVectorSearcher, _ *MockChunkLoader) {
				e.On("GenerateEmbedding", mock.Anything, mock.Anything).Return(nil, boom)
			},
			stage: domain.StageEmbedding,
		},
		{
			name: "vector search",
			setup: func(e *MockEmbedder, s *MockVectorSearcher, _ *MockChunkLoader) {
				e.On("GenerateEmbedding", mock.Anything, mock.Anything).Return(queryVector, nil)
				s.On("Search", mock.Anything, mock.Anything, mock.Anything).Return(nil, boom)
			},
			stage: domain.StageVectorSearch,
		},
		{
			name: "metadata",
			setup: func(e *MockEmbedder, s *MockVectorSearcher, l *MockChunkLoader) {
				e.On("GenerateEmbedding", mock.Anything, mock.Anything).Return(queryVector, nil)
				s.On("Search", mock.Anything, mock.Anything, mock.Anything).Return([]domain.Candidate{{ID: "x", Score: 1}}, nil)
				l.On("LoadByIDs", mock.Anything, mock.Anything, mock.Anything).Return(nil, boom)
			},
			stage: domain.StageMetadata,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			embedder := new(MockEmbedder)
			searcher := new(MockVectorSearcher)
			loader := new(MockChunkLoader)
			generator := new(MockGenerator)
			tt.setup(embedder, searcher, loader)

			res, err := NewCarrierAssistantService(embedder, searcher, loader, generator, testPipelineConfig()).Ask(context.Background(), flQuestion())

			assert.Nil(t, res)
			var retrievalErr *domain.RetrievalError
			require.ErrorAs(t, err, &retrievalErr)
			assert.Equal(t, tt.stage, retrievalErr.Stage)
			assert.ErrorIs(t, err, boom)
			generator.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
		})
	}
}

func TestAsk_EmbeddingTimeout(t *testing.T) {
	embedder := new(MockEmbedder)
	embedder.On("GenerateEmbedding", mock.Anything, mock.Anything).Return(nil, context.DeadlineExceeded).Run(func(args mock.Arguments) {
		ctx := args.Get(0).(context.Context)
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
	})

	_, err := NewCarrierAssistantService(embedder, new(MockVectorSearcher), new(MockChunkLoader), new(MockGenerator), testPipelineConfig()).
		Ask(context.Background(), flQuestion())

	var retrievalErr *domain.RetrievalError
	require.ErrorAs(t, err, &retrievalErr)
	assert.Equal(t, domain.StageEmbedding, retrievalErr.Stage)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAsk_GenerationFailure(t *testing.T) {
	embedder := new(MockEmbedder)
	searcher := new(MockVectorSearcher)
	generator := new(MockGenerator)
	store := &fixtureStore{chunks: []*domain.Chunk{wellingtonFL}}

	embedder.On("GenerateEmbedding", mock.Anything, mock.Anything).Return(queryVector, nil)
	searcher.On("Search", mock.Anything, mock.Anything, mock.Anything).Return([]domain.Candidate{{ID: "fl-1", Score: 0.8}}, nil)
	genErr := &domain.GenerationError{Primary: errors.New("quota"), Secondary: errors.New("offline")}
	generator.On("Generate", mock.Anything, mock.Anything).Return(nil, genErr)

	res, err := NewCarrierAssistantService(embedder, searcher, store, generator, testPipelineConfig()).Ask(context.Background(), flQuestion())

	assert.Nil(t, res)
	assert.ErrorIs(t, err, genErr)
	assert.True(t, domain.IsUpstreamFailure(err))
}

func TestAsk_PrimaryRateLimitedFallsBackToSecondary(t *testing.T) {
	embedder := new(MockEmbedder)
	searcher := new(MockVectorSearcher)
	store := &fixtureStore{chunks: []*domain.Chunk{wellingtonFL}}

	embedder.On("GenerateEmbedding", mock.Anything, mock.Anything).Return(queryVector, nil)
	searcher.On("Search", mock.Anything, mock.Anything, mock.Anything).Return([]domain.Candidate{{ID: "fl-1", Score: 0.8}}, nil)

	primary := &staticProvider{name: "gemini", err: &generation.ProviderError{Provider: "gemini", StatusCode: http.StatusTooManyRequests, Err: errors.New("quota")}}
	secondary := &staticProvider{name: "ollama", text: "Answer: No\n- Roof too old [#1]"}
	var waited time.Duration
	chain := generation.NewChain(primary, nil, secondary, generation.Config{RateLimitBackoff: 5 * time.Second}).
		WithSleep(func(_ context.Context, d time.Duration) error {
			waited += d
			return nil
		})

	res, err := NewCarrierAssistantService(embedder, searcher, store, chain, testPipelineConfig()).Ask(context.Background(), flQuestion())

	require.NoError(t, err)
	assert.Equal(t, domain.LabelNo, res.Answer)
	assert.Equal(t, "Answer: No\n- Roof too old [#1]", res.Conditions)
	assert.LessOrEqual(t, primary.calls, 2)
	assert.Equal(t, 1, secondary.calls)
	assert.Equal(t, 5*time.Second, waited)
}

func TestAsk_Validation(t *testing.T) {
	svc := NewCarrierAssistantService(new(MockEmbedder), new(MockVectorSearcher), new(MockChunkLoader), new(MockGenerator), PipelineConfig{})

	for _, in := range []AskInput{
		{Question: "", Filters: domain.Filters{Carrier: "W", LOB: "HO", State: "FL"}},
		{Question: " \t ", Filters: domain.Filters{Carrier: "W", LOB: "HO", State: "FL"}},
		{Question: "q", Filters: domain.Filters{LOB: "HO", State: "FL"}},
		{Question: "q", Filters: domain.Filters{Carrier: "W", State: "FL"}},
		{Question: "q", Filters: domain.Filters{Carrier: "W", LOB: "HO", State: "  "}},
	} {
		_, err := svc.Ask(context.Background(), in)
		assert.Equal(t, domain.ErrMissingRequiredField, err)
	}
}

func TestPipelineConfig_Defaults(t *testing.T) {
	cfg := DefaultPipelineConfig()
	assert.Equal(t, 5, cfg.TopK)
	assert.Equal(t, 25, cfg.CandidateCount())
	assert.InDelta(t, 0.02, cfg.RerankAlpha, 1e-9)
	assert.Equal(t, 5, cfg.contextLimit())

	svc := NewCarrierAssistantService(nil, nil, nil, nil, PipelineConfig{})
	assert.Equal(t, 5, svc.Config().TopK)
	assert.Equal(t, 5, svc.Config().CandidateMultiplier)
}
