package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// ChunkSplitSize is the maximum length of a single chunk produced by
// SplitDocument. Paragraphs longer than this are sliced into windows.
const ChunkSplitSize = 800

// KnowledgeChunk represents a stored unit of knowledge text with an
// optional embedding. The ID is content-addressed: a deterministic hash
// of the whitespace-normalized content, so re-ingesting identical text
// resolves to the existing chunk.
type KnowledgeChunk struct {
	ID        string
	Content   string
	Meta      map[string]string
	Embedding []float32 // nil until embedded
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NormalizeContent collapses all runs of whitespace to single spaces and
// trims the result. Chunk identity is computed over this form.
func NormalizeContent(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// ChunkID returns the content hash for the given text. Two texts that
// differ only in whitespace produce the same ID.
func ChunkID(text string) string {
	sum := sha256.Sum256([]byte(NormalizeContent(text)))
	return hex.EncodeToString(sum[:])
}

// HasEmbedding reports whether the chunk carries an embedding and is
// therefore eligible for vector retrieval.
func (c *KnowledgeChunk) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// NewKnowledgeChunk creates a chunk from raw text, computing its
// content-addressed ID and normalized content. Text that normalizes to
// nothing is rejected.
func NewKnowledgeChunk(text string, meta map[string]string, now time.Time) (*KnowledgeChunk, error) {
	normalized := NormalizeContent(text)
	if normalized == "" {
		return nil, ErrEmptyChunkText
	}
	return &KnowledgeChunk{
		ID:        ChunkID(normalized),
		Content:   normalized,
		Meta:      meta,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// SplitDocument splits a document into chunk-sized pieces: blank-line
// separated paragraphs, with paragraphs over ChunkSplitSize sliced into
// fixed windows. A document that yields no paragraphs produces a single
// truncated piece.
func SplitDocument(text string) []string {
	var out []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(para) <= ChunkSplitSize {
			out = append(out, para)
			continue
		}
		for i := 0; i < len(para); i += ChunkSplitSize {
			end := i + ChunkSplitSize
			if end > len(para) {
				end = len(para)
			}
			out = append(out, para[i:end])
		}
	}
	if len(out) == 0 {
		trimmed := strings.TrimSpace(text)
		if len(trimmed) > ChunkSplitSize {
			trimmed = trimmed[:ChunkSplitSize]
		}
		out = append(out, trimmed)
	}
	return out
}

// ValidateKnowledgeChunk validates a KnowledgeChunk instance
func ValidateKnowledgeChunk(c *KnowledgeChunk) error {
	if c == nil {
		return fmt.Errorf("chunk cannot be nil")
	}

	if c.ID == "" {
		return fmt.Errorf("chunk ID is required")
	}

	if strings.TrimSpace(c.Content) == "" {
		return fmt.Errorf("chunk Content is required")
	}

	if c.ID != ChunkID(c.Content) {
		return fmt.Errorf("chunk ID does not match content hash")
	}

	return nil
}
