package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/cloo-solutions/quotedesk/internal/domain"
	"github.com/cloo-solutions/quotedesk/internal/ingest"
	"github.com/cloo-solutions/quotedesk/internal/logging"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultEmbedConcurrency = 4

// DocumentLookup finds the stored document for a source path.
type DocumentLookup interface {
	GetBySourcePath(ctx context.Context, sourcePath string) (*domain.Document, error)
}

// IngestConfig controls document ingestion.
type IngestConfig struct {
	Chunking ChunkConfig
	// EmbedConcurrency bounds in-flight embedding requests per document.
	EmbedConcurrency int
}

// IngestOptions are per-run switches.
type IngestOptions struct {
	// Force re-ingests documents whose content hash is unchanged.
	Force bool
}

// IngestReport summarizes one ingestion run.
type IngestReport struct {
	Files    int
	Ingested int
	// Replaced counts ingested documents whose previous chunks were deleted.
	// A vector index loaded before the run still holds their old ids.
	Replaced int
	Skipped  int
	Failed   int
	Chunks   int
	Failures map[string]string
}

// IngestService loads guideline documents from a source, chunks and embeds
// them, and replaces their stored chunks.
type IngestService struct {
	source    ingest.Source
	embedder  Embedder
	documents DocumentLookup
	txRunner  TxRunner
	cfg       IngestConfig
	newID     func() string
}

func NewIngestService(source ingest.Source, embedder Embedder, documents DocumentLookup, txRunner TxRunner, cfg IngestConfig) *IngestService {
	if cfg.Chunking.Size <= 0 {
		cfg.Chunking = DefaultChunkConfig()
	}
	if cfg.EmbedConcurrency <= 0 {
		cfg.EmbedConcurrency = defaultEmbedConcurrency
	}
	return &IngestService{
		source:    source,
		embedder:  embedder,
		documents: documents,
		txRunner:  txRunner,
		cfg:       cfg,
		newID:     uuid.NewString,
	}
}

type ingestOutcome int

const (
	outcomeIngested ingestOutcome = iota
	outcomeReplaced
	outcomeUnchanged
	outcomeEmpty
)

// Run ingests every document the source lists. A failing document is
// recorded in the report and does not stop the run.
func (s *IngestService) Run(ctx context.Context, opts IngestOptions) (*IngestReport, error) {
	logger := logging.FromContext(ctx)

	keys, err := s.source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	report := &IngestReport{Files: len(keys), Failures: map[string]string{}}
	if len(keys) == 0 {
		logger.Warn("no .txt or .pdf documents found")
		return report, nil
	}

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		start := time.Now()
		outcome, chunks, err := s.ingestOne(ctx, key, opts)
		if err != nil {
			report.Failed++
			report.Failures[key] = err.Error()
			logger.Warn("document ingestion failed", zap.String("key", key), zap.Error(err))
			continue
		}

		switch outcome {
		case outcomeIngested, outcomeReplaced:
			report.Ingested++
			report.Chunks += chunks
			if outcome == outcomeReplaced {
				report.Replaced++
			}
			logger.Info("ingested document",
				zap.String("key", key),
				zap.Int("chunks", chunks),
				zap.Bool("replaced", outcome == outcomeReplaced),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		case outcomeUnchanged:
			report.Skipped++
			logger.Debug("document unchanged", zap.String("key", key))
		case outcomeEmpty:
			report.Skipped++
			logger.Warn("document has no extractable text", zap.String("key", key))
		}
	}

	logger.Info("ingestion finished",
		zap.Int("files", report.Files),
		zap.Int("ingested", report.Ingested),
		zap.Int("replaced", report.Replaced),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Int("chunks", report.Chunks),
	)
	return report, nil
}

func (s *IngestService) ingestOne(ctx context.Context, key string, opts IngestOptions) (ingestOutcome, int, error) {
	data, err := s.source.Read(ctx, key)
	if err != nil {
		return 0, 0, fmt.Errorf("read: %w", err)
	}

	sourcePath := s.source.Locate(key)
	hash := contentHash(data)

	existing, err := s.documents.GetBySourcePath(ctx, sourcePath)
	if err != nil && !errors.Is(err, domain.ErrDocumentNotFound) {
		return 0, 0, fmt.Errorf("lookup: %w", err)
	}
	if existing != nil && existing.ContentHash == hash && !opts.Force {
		return outcomeUnchanged, 0, nil
	}

	layout := ingest.ParseKey(key)
	text, err := ingest.ExtractText(layout.DocName, data)
	if err != nil {
		return 0, 0, err
	}
	pieces := chunkText(text, s.cfg.Chunking)
	if len(pieces) == 0 {
		return outcomeEmpty, 0, nil
	}

	embeddings, err := s.embedAll(ctx, pieces)
	if err != nil {
		return 0, 0, err
	}

	doc := &domain.Document{
		ID:          s.newID(),
		Carrier:     layout.Carrier,
		LOB:         layout.LOB,
		State:       layout.State,
		Version:     layout.Version,
		DocName:     layout.DocName,
		SourcePath:  sourcePath,
		ContentHash: hash,
		CreatedAt:   time.Now().UTC(),
	}

	chunks := make([]*domain.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = &domain.Chunk{
			ID:        s.newID(),
			DocID:     doc.ID,
			Carrier:   doc.Carrier,
			LOB:       doc.LOB,
			State:     doc.State,
			Version:   doc.Version,
			Page:      fmt.Sprintf("%d", i+1),
			Text:      piece,
			Embedding: embeddings[i],
			CreatedAt: doc.CreatedAt,
		}
		if err := domain.ValidateChunk(chunks[i], 0); err != nil {
			return 0, 0, err
		}
	}

	err = s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if existing != nil {
			if err := repos.Documents().Delete(ctx, existing.ID); err != nil && !errors.Is(err, domain.ErrDocumentNotFound) {
				return fmt.Errorf("delete previous version: %w", err)
			}
		}
		if err := repos.Documents().Create(ctx, doc); err != nil {
			return fmt.Errorf("create document: %w", err)
		}
		if err := repos.Chunks().InsertChunks(ctx, chunks); err != nil {
			return fmt.Errorf("insert chunks: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	if existing != nil {
		return outcomeReplaced, len(chunks), nil
	}
	return outcomeIngested, len(chunks), nil
}

func (s *IngestService) embedAll(ctx context.Context, pieces []string) ([][]float32, error) {
	out := make([][]float32, len(pieces))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.EmbedConcurrency)
	for i, piece := range pieces {
		g.Go(func() error {
			vec, err := s.embedder.GenerateEmbedding(gctx, piece)
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", i+1, err)
			}
			out[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
