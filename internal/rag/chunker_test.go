package rag

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkerRejectsOverlapNotSmallerThanSize(t *testing.T) {
	_, err := NewChunker(ChunkerConfig{ChunkSize: 64, ChunkOverlap: 64})
	assert.Error(t, err)

	_, err = NewChunker(ChunkerConfig{ChunkSize: 64, ChunkOverlap: 128})
	assert.Error(t, err)
}

func TestChunkTextEmptyInput(t *testing.T) {
	chunker, err := NewChunker(ChunkerConfig{})
	require.NoError(t, err)

	chunks, err := chunker.ChunkText("   \n\t\n", nil)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunkTextShortInputSingleChunk(t *testing.T) {
	chunker, err := NewChunker(ChunkerConfig{})
	require.NoError(t, err)

	chunks, err := chunker.ChunkText("a short paragraph\nwith two lines", map[string]string{"filename": "a.txt"})
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	assert.Equal(t, 0, chunks[0].Index)
	assert.Contains(t, chunks[0].Text, "a short paragraph")
	assert.Equal(t, "a.txt", chunks[0].Metadata["filename"])
}

func TestChunkTextBoundedChunksWithOverlap(t *testing.T) {
	chunker, err := NewChunker(ChunkerConfig{ChunkSize: 24, ChunkOverlap: 8})
	require.NoError(t, err)

	var sb strings.Builder
	for i := 1; i <= 40; i++ {
		fmt.Fprintf(&sb, "line %02d\n", i)
	}

	chunks, err := chunker.ChunkText(sb.String(), nil)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index)
	}

	// Consecutive chunks share trailing lines, so every chunk after the first
	// starts with content already seen in its predecessor.
	for i := 1; i < len(chunks); i++ {
		firstLine := strings.SplitN(chunks[i].Text, "\n", 2)[0]
		assert.Contains(t, chunks[i-1].Text, firstLine,
			"chunk %d should begin with overlap from chunk %d", i, i-1)
	}

	// Nothing is lost between chunks.
	joined := strings.Join(collectTexts(chunks), "")
	for i := 1; i <= 40; i++ {
		assert.Contains(t, joined, fmt.Sprintf("line %02d", i))
	}
}

func TestChunkTextMetadataIsolation(t *testing.T) {
	chunker, err := NewChunker(ChunkerConfig{ChunkSize: 24, ChunkOverlap: 8})
	require.NoError(t, err)

	var sb strings.Builder
	for i := 1; i <= 30; i++ {
		fmt.Fprintf(&sb, "row number %d\n", i)
	}

	chunks, err := chunker.ChunkText(sb.String(), map[string]string{"filename": "b.txt"})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	chunks[0].Metadata["filename"] = "mutated"
	assert.Equal(t, "b.txt", chunks[1].Metadata["filename"])
}

func TestChunkTextSplitsOversizedLine(t *testing.T) {
	chunker, err := NewChunker(ChunkerConfig{ChunkSize: 16, ChunkOverlap: 4})
	require.NoError(t, err)

	long := strings.Repeat("abcdefgh ", 100)
	chunks, err := chunker.ChunkText(long, nil)
	require.NoError(t, err)
	assert.Greater(t, len(chunks), 1)
}

func collectTexts(chunks []Chunk) []string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return texts
}
