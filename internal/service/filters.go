package service

import (
	"strings"

	"github.com/cloo-solutions/quotedesk/internal/domain"
)

// Values the intake UI sends for "any program" and "any version".
const (
	sentinelSelect = "Select"
	sentinelLatest = "Latest"
)

// ChunkFilter is the metadata filter applied to vector search candidates.
// Program and Version are empty when not applied.
type ChunkFilter struct {
	Carrier string
	LOB     string
	State   string
	Program string
	Version string
}

// NormalizeOptionalFilter returns "" for values that mean "no filter".
func NormalizeOptionalFilter(value string) string {
	v := strings.TrimSpace(value)
	if v == "" || v == sentinelSelect || v == sentinelLatest {
		return ""
	}
	return v
}

// NewChunkFilter builds the metadata filter for a question. Required
// dimensions are matched exactly as given.
func NewChunkFilter(f domain.Filters) ChunkFilter {
	return ChunkFilter{
		Carrier: f.Carrier,
		LOB:     f.LOB,
		State:   f.State,
		Program: NormalizeOptionalFilter(f.Program),
		Version: NormalizeOptionalFilter(f.Version),
	}
}

// Matches reports whether c satisfies the filter.
func (f ChunkFilter) Matches(c *domain.Chunk) bool {
	if c == nil {
		return false
	}
	if c.Carrier != f.Carrier || c.LOB != f.LOB || c.State != f.State {
		return false
	}
	if f.Program != "" && c.Program != f.Program {
		return false
	}
	if f.Version != "" && c.Version != f.Version {
		return false
	}
	return true
}

// orderByCandidates re-derives the vector search order for chunks loaded by
// id, dropping ids the store did not return and truncating to limit.
func orderByCandidates(candidates []domain.Candidate, chunks []*domain.Chunk, limit int) []RankedChunk {
	byID := make(map[string]*domain.Chunk, len(chunks))
	for _, c := range chunks {
		if c != nil {
			byID[c.ID] = c
		}
	}

	out := make([]RankedChunk, 0, len(chunks))
	seen := make(map[string]struct{}, len(candidates))
	for _, cand := range candidates {
		if limit > 0 && len(out) >= limit {
			break
		}
		if _, dup := seen[cand.ID]; dup {
			continue
		}
		seen[cand.ID] = struct{}{}
		c, ok := byID[cand.ID]
		if !ok {
			continue
		}
		out = append(out, RankedChunk{Chunk: c, VectorScore: cand.Score})
	}
	return out
}
