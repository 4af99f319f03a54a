package service

import (
	"context"

	"github.com/cloo-solutions/quotedesk/internal/domain"
)

// DocumentRepositoryInterface persists guideline documents.
type DocumentRepositoryInterface interface {
	GetBySourcePath(ctx context.Context, sourcePath string) (*domain.Document, error)
	Create(ctx context.Context, doc *domain.Document) error
	Delete(ctx context.Context, id string) error
}

// ChunkWriterInterface stores the chunks of a newly created document.
type ChunkWriterInterface interface {
	InsertChunks(ctx context.Context, chunks []*domain.Chunk) error
}

// TxRepositories provides transaction-bound repositories.
type TxRepositories interface {
	Documents() DocumentRepositoryInterface
	Chunks() ChunkWriterInterface
}

// TxRunner executes a function within a transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(repos TxRepositories) error) error
}
