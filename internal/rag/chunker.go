package rag

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// ChunkerConfig holds chunking configuration
type ChunkerConfig struct {
	ChunkSize    int // Tokens per chunk (default: 512)
	ChunkOverlap int // Token overlap between consecutive chunks (default: 64)
}

// Chunk is a contiguous span of extracted document text. Index is stable
// within the source file.
type Chunk struct {
	Text     string
	Index    int
	Metadata map[string]string
}

// Chunker splits extracted text into bounded, overlapping chunks
type Chunker interface {
	// ChunkText splits text into chunks
	ChunkText(text string, metadata map[string]string) ([]Chunk, error)

	// CountTokens returns token count for text
	CountTokens(text string) (int, error)
}

// tokenChunker implements paragraph-aware token-bounded chunking
type tokenChunker struct {
	config   ChunkerConfig
	encoding *tiktoken.Tiktoken
}

// NewChunker creates a new chunker
func NewChunker(config ChunkerConfig) (Chunker, error) {
	if config.ChunkSize == 0 {
		config.ChunkSize = 512
	}
	if config.ChunkOverlap == 0 {
		config.ChunkOverlap = 64
	}
	if config.ChunkOverlap >= config.ChunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", config.ChunkOverlap, config.ChunkSize)
	}

	// cl100k_base matches the embedding models we pair with
	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("get encoding: %w", err)
	}

	return &tokenChunker{
		config:   config,
		encoding: encoding,
	}, nil
}

// ChunkText splits text into chunks. Overlap between consecutive chunks keeps
// semantic units that straddle a boundary retrievable from either side.
func (c *tokenChunker) ChunkText(text string, metadata map[string]string) ([]Chunk, error) {
	if metadata == nil {
		metadata = make(map[string]string)
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	lines := strings.Split(text, "\n")

	var (
		chunks        []Chunk
		currentChunk  strings.Builder
		currentTokens int
		overlapLines  []string
	)

	flush := func() {
		if currentChunk.Len() == 0 {
			return
		}
		chunks = append(chunks, Chunk{
			Text:     currentChunk.String(),
			Index:    len(chunks),
			Metadata: cloneMetadata(metadata),
		})
		currentChunk.Reset()
		currentTokens = 0
	}

	for _, line := range lines {
		lineText := line + "\n"
		lineTokens, err := c.CountTokens(lineText)
		if err != nil {
			return nil, err
		}

		// A single oversized line is split on its own
		if lineTokens > c.config.ChunkSize {
			flush()
			pieces := c.splitLongLine(lineText)
			for _, piece := range pieces {
				chunks = append(chunks, Chunk{
					Text:     piece,
					Index:    len(chunks),
					Metadata: cloneMetadata(metadata),
				})
			}
			overlapLines = nil
			continue
		}

		if currentTokens+lineTokens > c.config.ChunkSize && currentChunk.Len() > 0 {
			flush()

			// Seed the next chunk with overlap from the previous one
			if c.config.ChunkOverlap > 0 && len(overlapLines) > 0 {
				overlapText, err := c.collectOverlap(overlapLines)
				if err != nil {
					return nil, err
				}
				currentChunk.WriteString(overlapText)
				overlapTokens, err := c.CountTokens(overlapText)
				if err != nil {
					return nil, err
				}
				currentTokens = overlapTokens
			}
			overlapLines = nil
		}

		currentChunk.WriteString(lineText)
		currentTokens += lineTokens
		overlapLines = append(overlapLines, lineText)
	}

	flush()

	return chunks, nil
}

// splitLongLine splits a very long line into character-based pieces
func (c *tokenChunker) splitLongLine(line string) []string {
	// Roughly 4 characters per token
	charsPerChunk := c.config.ChunkSize * 4

	var pieces []string
	runes := []rune(line)
	for start := 0; start < len(runes); start += charsPerChunk {
		end := start + charsPerChunk
		if end > len(runes) {
			end = len(runes)
		}
		pieces = append(pieces, string(runes[start:end]))
	}
	return pieces
}

// collectOverlap takes trailing lines of the previous chunk up to the overlap
// token budget.
func (c *tokenChunker) collectOverlap(lines []string) (string, error) {
	tokens := 0
	start := len(lines)

	for i := len(lines) - 1; i >= 0; i-- {
		lineTokens, err := c.CountTokens(lines[i])
		if err != nil {
			return "", fmt.Errorf("count overlap tokens: %w", err)
		}
		if tokens+lineTokens > c.config.ChunkOverlap {
			break
		}
		tokens += lineTokens
		start = i
	}

	if start >= len(lines) {
		return "", nil
	}
	return strings.Join(lines[start:], ""), nil
}

// CountTokens returns token count for text
func (c *tokenChunker) CountTokens(text string) (int, error) {
	tokens := c.encoding.Encode(text, nil, nil)
	return len(tokens), nil
}

func cloneMetadata(src map[string]string) map[string]string {
	if len(src) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(src))
	for key, value := range src {
		out[key] = value
	}
	return out
}
