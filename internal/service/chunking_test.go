package service

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkText_Empty(t *testing.T) {
	assert.Nil(t, chunkText("   \n\t ", DefaultChunkConfig()))
}

func TestChunkText_ShortTextIsOneChunk(t *testing.T) {
	got := chunkText("  Roof age limit is 15 years.  ", DefaultChunkConfig())
	assert.Equal(t, []string{"Roof age limit is 15 years."}, got)
}

func TestChunkText_FixedWindows(t *testing.T) {
	// 2000 distinct runes: windows start at 0, 680, 1360 and 2040 is past the end.
	var b strings.Builder
	for i := 0; i < 2000; i++ {
		b.WriteByte(byte('a' + i%26))
	}
	text := b.String()

	chunks := chunkText(text, DefaultChunkConfig())
	require.Len(t, chunks, 3)
	assert.Equal(t, text[0:800], chunks[0])
	assert.Equal(t, text[680:1480], chunks[1])
	assert.Equal(t, text[1360:2000], chunks[2])

	// Consecutive windows share exactly the overlap.
	assert.Equal(t, chunks[0][680:], chunks[1][:120])
}

func TestChunkText_TailInsideOverlapStillEmitted(t *testing.T) {
	text := strings.Repeat("x", 850)

	chunks := chunkText(text, DefaultChunkConfig())
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], 800)
	assert.Len(t, chunks[1], 170)
}

func TestChunkText_CutsMidWord(t *testing.T) {
	chunks := chunkText("alpha beta gamma", ChunkConfig{Size: 8, Overlap: 0})
	assert.Equal(t, []string{"alpha be", "ta gamma"}, chunks)
}

func TestChunkText_BlankWindowsAreDropped(t *testing.T) {
	text := "roof" + strings.Repeat(" ", 20) + "pool"
	chunks := chunkText(text, ChunkConfig{Size: 8, Overlap: 0})
	assert.Equal(t, []string{"roof", "pool"}, chunks)
}

func TestChunkText_OverlapNotSmallerThanSizeDoesNotStall(t *testing.T) {
	chunks := chunkText(strings.Repeat("abcd", 5), ChunkConfig{Size: 4, Overlap: 4})
	assert.Len(t, chunks, 5)
}

func TestChunkText_MultibyteRunes(t *testing.T) {
	chunks := chunkText("ñañañañaña", ChunkConfig{Size: 4, Overlap: 1})
	require.Equal(t, []string{"ñaña", "añañ", "ñaña", "a"}, chunks)
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c))
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 4)
	}
}
