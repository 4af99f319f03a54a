package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cloo-solutions/quotedesk/internal/domain"
	"github.com/cloo-solutions/quotedesk/internal/logging"
	"github.com/cloo-solutions/quotedesk/internal/vectorindex"
	"go.uber.org/zap"
)

const defaultSyncBatchSize = 100

// VectorIndex is the in-memory vector service that mirrors stored
// embeddings.
type VectorIndex interface {
	Reset(ctx context.Context) (*vectorindex.Stats, error)
	Stats(ctx context.Context) (*vectorindex.Stats, error)
	Add(ctx context.Context, ids []string, vectors [][]float32) (*vectorindex.AddResult, error)
}

// ChunkEmbeddingSource pages through stored chunk embeddings.
type ChunkEmbeddingSource interface {
	Revision(ctx context.Context) (StoreRevision, error)
	ListEmbeddings(ctx context.Context, limit, offset int) ([]domain.ChunkEmbedding, error)
}

// StoreRevision identifies the set of stored embeddings. Chunks are never
// updated in place, so replacing a document always moves LatestAt forward
// and deleting one always lowers Count.
type StoreRevision struct {
	Count    int
	LatestAt time.Time
}

// Equal reports whether r and o describe the same stored set.
func (r StoreRevision) Equal(o StoreRevision) bool {
	return r.Count == o.Count && r.LatestAt.Equal(o.LatestAt)
}

// SyncOptions controls one index load.
type SyncOptions struct {
	// Reset empties the index before loading.
	Reset bool
	// BatchSize is the number of vectors per add request.
	BatchSize int
}

// SyncReport summarizes an index load.
type SyncReport struct {
	Stored        int
	Loaded        int
	Skipped       int
	FailedBatches int
	IndexTotal    int
	Dimension     int
}

// IndexStatus compares the index with the store.
type IndexStatus struct {
	Stored    int
	Indexed   int
	Dimension int
	// Tracked is set once this service has completed a load, so that Stale
	// is meaningful.
	Tracked bool
	// Stale is set when the store changed since the last completed load.
	Stale bool
}

// NeedsReload reports whether the index may serve ids that are no longer
// stored or miss ids that are. Equal counts are not enough: a replaced
// document keeps its chunk count but gets new chunk ids.
func (s IndexStatus) NeedsReload() bool {
	if s.Indexed != s.Stored {
		return true
	}
	return s.Stored > 0 && (!s.Tracked || s.Stale)
}

// IndexSyncService loads stored chunk embeddings into the vector index. The
// index keeps nothing across restarts, so it must be reloaded after one.
type IndexSyncService struct {
	index  VectorIndex
	source ChunkEmbeddingSource

	mu     sync.Mutex
	loaded *StoreRevision
}

func NewIndexSyncService(index VectorIndex, source ChunkEmbeddingSource) *IndexSyncService {
	return &IndexSyncService{index: index, source: source}
}

// Status returns the stored and indexed vector counts and whether the store
// moved on since the last load.
func (s *IndexSyncService) Status(ctx context.Context) (*IndexStatus, error) {
	stats, err := s.index.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("index stats: %w", err)
	}
	rev, err := s.source.Revision(ctx)
	if err != nil {
		return nil, fmt.Errorf("read store revision: %w", err)
	}

	status := &IndexStatus{Stored: rev.Count, Indexed: stats.Total, Dimension: stats.Dimension}
	s.mu.Lock()
	if s.loaded != nil {
		status.Tracked = true
		status.Stale = !s.loaded.Equal(rev)
	}
	s.mu.Unlock()
	return status, nil
}

func (s *IndexSyncService) markLoaded(rev StoreRevision) {
	s.mu.Lock()
	s.loaded = &rev
	s.mu.Unlock()
}

// Sync pages every stored embedding into the index. Vectors whose length
// differs from the index dimension are skipped, and a rejected batch is
// logged and does not stop the load.
func (s *IndexSyncService) Sync(ctx context.Context, opts SyncOptions) (*SyncReport, error) {
	logger := logging.FromContext(ctx)
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultSyncBatchSize
	}

	if opts.Reset {
		stats, err := s.index.Reset(ctx)
		if err != nil {
			return nil, fmt.Errorf("reset index: %w", err)
		}
		logger.Info("vector index reset", zap.Int("total", stats.Total))
	}

	stats, err := s.index.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("index stats: %w", err)
	}
	rev, err := s.source.Revision(ctx)
	if err != nil {
		return nil, fmt.Errorf("read store revision: %w", err)
	}
	stored := rev.Count
	logger.Info("vector index before load",
		zap.Int("index_total", stats.Total),
		zap.Int("dimension", stats.Dimension),
		zap.Int("stored", stored),
	)

	report := &SyncReport{Stored: stored, IndexTotal: stats.Total, Dimension: stats.Dimension}
	if stored == 0 {
		logger.Warn("no stored embeddings, run ingestion first")
		s.markLoaded(rev)
		return report, nil
	}

	for offset := 0; offset < stored; offset += batchSize {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		batch, err := s.source.ListEmbeddings(ctx, batchSize, offset)
		if err != nil {
			return report, fmt.Errorf("list embeddings at offset %d: %w", offset, err)
		}
		if len(batch) == 0 {
			break
		}

		ids := make([]string, 0, len(batch))
		vectors := make([][]float32, 0, len(batch))
		for _, e := range batch {
			if stats.Dimension > 0 && len(e.Embedding) != stats.Dimension {
				report.Skipped++
				logger.Warn("skipping chunk with mismatched dimension",
					zap.String("chunk_id", e.ID),
					zap.Int("dimension", len(e.Embedding)),
					zap.Int("expected", stats.Dimension),
				)
				continue
			}
			ids = append(ids, e.ID)
			vectors = append(vectors, e.Embedding)
		}
		if len(ids) == 0 {
			continue
		}

		res, err := s.index.Add(ctx, ids, vectors)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.FailedBatches++
			logger.Error("vector index rejected batch", zap.Int("offset", offset), zap.Error(err))
			continue
		}
		report.Loaded += res.Count
		logger.Info("loaded embeddings",
			zap.Int("loaded", report.Loaded),
			zap.Int("stored", stored),
			zap.Int("index_total", res.Total),
		)
	}

	final, err := s.index.Stats(ctx)
	if err != nil {
		return report, fmt.Errorf("index stats: %w", err)
	}
	report.IndexTotal = final.Total
	report.Dimension = final.Dimension
	if final.Total < report.Loaded {
		logger.Warn("vector index holds fewer vectors than were loaded",
			zap.Int("index_total", final.Total),
			zap.Int("loaded", report.Loaded),
		)
	}
	// A partial load must be retried by the next check.
	if report.FailedBatches == 0 {
		s.markLoaded(rev)
	}
	logger.Info("vector index load finished", zap.Int("index_total", final.Total), zap.Int("loaded", report.Loaded))
	return report, nil
}
