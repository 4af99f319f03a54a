package jobs

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/quotedesk/internal/logging"
	"github.com/cloo-solutions/quotedesk/internal/service"
	"go.uber.org/zap"
)

// IndexSyncer reports on and reloads the vector index.
type IndexSyncer interface {
	Status(ctx context.Context) (*service.IndexStatus, error)
	Sync(ctx context.Context, opts service.SyncOptions) (*service.SyncReport, error)
}

// IndexSyncWorker reloads the vector index whenever it no longer mirrors the
// store: after the vector service restarts, and after ingestion adds,
// replaces or removes documents.
type IndexSyncWorker struct {
	syncer    IndexSyncer
	batchSize int
}

// NewIndexSyncWorker creates a new IndexSyncWorker instance
func NewIndexSyncWorker(syncer IndexSyncer, batchSize int) *IndexSyncWorker {
	return &IndexSyncWorker{syncer: syncer, batchSize: batchSize}
}

// ProcessJobs implements the JobProcessor interface
func (w *IndexSyncWorker) ProcessJobs(ctx context.Context) error {
	status, err := w.syncer.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to check index status: %w", err)
	}
	if !status.NeedsReload() {
		return nil
	}

	// A non-empty index is rebuilt from scratch so stale ids are dropped and
	// vectors are never added twice.
	opts := service.SyncOptions{Reset: status.Indexed > 0, BatchSize: w.batchSize}
	logging.FromContext(ctx).Info("vector index out of date, reloading",
		zap.Int("stored", status.Stored),
		zap.Int("indexed", status.Indexed),
		zap.Bool("stale", status.Stale),
		zap.Bool("reset", opts.Reset),
	)

	if _, err := w.syncer.Sync(ctx, opts); err != nil {
		return fmt.Errorf("failed to sync index: %w", err)
	}
	return nil
}
