package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/cloo-solutions/quotedesk/internal/domain"
	"github.com/cloo-solutions/quotedesk/internal/service"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// ChunkRepository reads and writes guideline chunks. It also serves as the
// pgvector nearest-neighbour backend.
type ChunkRepository struct {
	db dbtx
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool}
}

func NewChunkRepositoryWithTx(tx pgx.Tx) *ChunkRepository {
	return &ChunkRepository{db: tx}
}

const insertChunkSQL = `INSERT INTO chunks (id, doc_id, carrier, lob, state, program, version, page, chunk, embedding, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

// InsertChunks stores new chunks in one batch. Existing chunks are never
// updated; a changed document is deleted and re-inserted.
func (r *ChunkRepository) InsertChunks(ctx context.Context, chunks []*domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		var embedding any
		if len(c.Embedding) > 0 {
			embedding = pgvector.NewVector(c.Embedding)
		}
		batch.Queue(insertChunkSQL,
			c.ID,
			c.DocID,
			c.Carrier,
			c.LOB,
			c.State,
			nullableString(c.Program),
			nullableString(c.Version),
			c.Page,
			c.Text,
			embedding,
			createdAt,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	for _, c := range chunks {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("insert chunks: %w", err)
	}
	return nil
}

// LoadByIDs returns the chunks among ids that match filter, joined with their
// document. Ids that are not valid UUIDs cannot exist and are skipped.
func (r *ChunkRepository) LoadByIDs(ctx context.Context, ids []string, filter service.ChunkFilter) ([]*domain.Chunk, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return []*domain.Chunk{}, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT c.id, c.doc_id, c.carrier, c.lob, c.state, c.program, c.version, c.page, c.chunk, c.created_at,
		        d.doc_name, d.source_path
		 FROM chunks c
		 JOIN documents d ON d.id = c.doc_id
		 WHERE c.id = ANY($1)
		   AND c.carrier = $2 AND c.lob = $3 AND c.state = $4
		   AND ($5::text = '' OR c.program = $5::text)
		   AND ($6::text = '' OR c.version = $6::text)`,
		valid, filter.Carrier, filter.LOB, filter.State, filter.Program, filter.Version,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chunks := make([]*domain.Chunk, 0, len(valid))
	for rows.Next() {
		var c domain.Chunk
		var program, version *string
		if err := rows.Scan(&c.ID, &c.DocID, &c.Carrier, &c.LOB, &c.State, &program, &version, &c.Page, &c.Text, &c.CreatedAt,
			&c.DocName, &c.SourcePath); err != nil {
			return nil, err
		}
		c.Program = derefString(program)
		c.Version = derefString(version)
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}

// Search returns the topK chunks closest to vector by cosine distance, scored
// as 1 - distance.
func (r *ChunkRepository) Search(ctx context.Context, vector []float32, topK int) ([]domain.Candidate, error) {
	if topK <= 0 {
		return []domain.Candidate{}, nil
	}

	vec := pgvector.NewVector(vector)
	rows, err := r.db.Query(ctx,
		`SELECT id, 1 - (embedding <=> $1) AS score
		 FROM chunks
		 WHERE embedding IS NOT NULL
		 ORDER BY embedding <=> $1
		 LIMIT $2`,
		vec, topK,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	candidates := make([]domain.Candidate, 0, topK)
	for rows.Next() {
		var c domain.Candidate
		if err := rows.Scan(&c.ID, &c.Score); err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// Revision returns the number of chunks that carry an embedding and the
// newest chunk's creation time.
func (r *ChunkRepository) Revision(ctx context.Context) (service.StoreRevision, error) {
	var rev service.StoreRevision
	var latest *time.Time
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*), MAX(created_at) FROM chunks WHERE embedding IS NOT NULL`,
	).Scan(&rev.Count, &latest)
	if err != nil {
		return service.StoreRevision{}, err
	}
	if latest != nil {
		rev.LatestAt = latest.UTC()
	}
	return rev, nil
}

// ListEmbeddings pages through chunk embeddings in insertion order.
func (r *ChunkRepository) ListEmbeddings(ctx context.Context, limit, offset int) ([]domain.ChunkEmbedding, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, embedding
		 FROM chunks
		 WHERE embedding IS NOT NULL
		 ORDER BY created_at, id
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ChunkEmbedding, 0, limit)
	for rows.Next() {
		var id string
		var vec pgvector.Vector
		if err := rows.Scan(&id, &vec); err != nil {
			return nil, err
		}
		out = append(out, domain.ChunkEmbedding{ID: id, Embedding: vec.Slice()})
	}
	return out, rows.Err()
}
