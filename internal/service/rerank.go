package service

import (
	"sort"

	"github.com/cloo-solutions/quotedesk/internal/domain"
)

// RankedChunk is a chunk that passed the metadata filter, annotated with the
// scores used for reranking.
type RankedChunk struct {
	Chunk         *domain.Chunk
	VectorScore   float64
	KeywordScore  int
	CombinedScore float64
}

// Rerank orders chunks by vector score plus alpha times keyword overlap with
// the question and keeps the first topK. Input order is the vector search
// order and breaks ties.
func Rerank(chunks []RankedChunk, question string, alpha float64, topK int) []RankedChunk {
	out := make([]RankedChunk, len(chunks))
	copy(out, chunks)
	for i := range out {
		out[i].KeywordScore = KeywordOverlapScore(question, out[i].Chunk.Text)
		out[i].CombinedScore = out[i].VectorScore + alpha*float64(out[i].KeywordScore)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CombinedScore > out[j].CombinedScore
	})

	if topK >= 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}
