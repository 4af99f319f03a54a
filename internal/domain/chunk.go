package domain

import (
	"fmt"
	"time"
)

// Document is a guideline file that chunks were extracted from.
type Document struct {
	ID          string
	Carrier     string
	LOB         string
	State       string
	Version     string
	DocName     string
	SourcePath  string
	ContentHash string
	CreatedAt   time.Time
}

// Chunk is a contiguous slice of a document's extracted text. Its business
// dimensions never change after creation; re-ingestion replaces chunks.
type Chunk struct {
	ID        string
	DocID     string
	Carrier   string
	LOB       string
	State     string
	Program   string
	Version   string
	Page      string
	Text      string
	Embedding []float32
	CreatedAt time.Time

	// Joined from the owning document when loaded for retrieval.
	DocName    string
	SourcePath string
}

// DisplayName returns the document display name, falling back to the
// document id.
func (c *Chunk) DisplayName() string {
	if c.DocName != "" {
		return c.DocName
	}
	return c.DocID
}

// ValidateChunk checks the invariants required before a chunk is stored.
func ValidateChunk(c *Chunk, dimensions int) error {
	if c == nil {
		return fmt.Errorf("chunk cannot be nil")
	}
	if c.ID == "" {
		return fmt.Errorf("chunk ID is required")
	}
	if c.DocID == "" {
		return fmt.Errorf("chunk DocID is required")
	}
	if c.Carrier == "" || c.LOB == "" || c.State == "" {
		return fmt.Errorf("chunk carrier, lob and state are required")
	}
	if dimensions > 0 && len(c.Embedding) != dimensions {
		return fmt.Errorf("chunk embedding has %d dimensions, expected %d", len(c.Embedding), dimensions)
	}
	return nil
}

// Candidate is a vector search hit.
type Candidate struct {
	ID    string
	Score float64
}

// ChunkEmbedding is the id and vector of a stored chunk, as loaded into an
// external vector index.
type ChunkEmbedding struct {
	ID        string
	Embedding []float32
}
