package service

import "strings"

// ChunkConfig controls how guideline text is split before embedding. Sizes
// are in runes.
type ChunkConfig struct {
	Size    int
	Overlap int
}

// DefaultChunkConfig returns the guideline chunking used at ingestion.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{Size: 800, Overlap: 120}
}

// step is how far each window starts after the previous one.
func (c ChunkConfig) step() int {
	if c.Overlap <= 0 || c.Overlap >= c.Size {
		return c.Size
	}
	return c.Size - c.Overlap
}

// chunkText cuts text into fixed windows of Size runes, each starting
// Size-Overlap runes after the previous one. Windows are cut without regard
// to word boundaries so chunk offsets stay predictable across re-ingestion.
// Surrounding whitespace is trimmed and blank windows are dropped.
func chunkText(text string, cfg ChunkConfig) []string {
	if cfg.Size <= 0 {
		cfg = DefaultChunkConfig()
	}
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	step := cfg.step()
	chunks := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := min(start+cfg.Size, len(runes))
		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}
