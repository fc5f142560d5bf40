package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/cloo-solutions/converso/internal/service"
)

// ChunkEmbedder defines the interface for the embedding sweep over chunks
type ChunkEmbedder interface {
	EmbedMissing(ctx context.Context, limit int) (*service.EmbedMissingResult, error)
}

// EmbeddingSweep embeds knowledge chunks that have no stored vector.
// Each pass picks up to batchLimit rows; a failed row is left for the
// next pass rather than aborting the batch.
type EmbeddingSweep struct {
	knowledge  ChunkEmbedder
	batchLimit int
}

// NewEmbeddingSweep creates a new EmbeddingSweep instance
func NewEmbeddingSweep(knowledge ChunkEmbedder, batchLimit int) *EmbeddingSweep {
	if batchLimit <= 0 {
		batchLimit = 50
	}
	return &EmbeddingSweep{
		knowledge:  knowledge,
		batchLimit: batchLimit,
	}
}

// ProcessJobs implements the JobProcessor interface
func (s *EmbeddingSweep) ProcessJobs(ctx context.Context) error {
	result, err := s.knowledge.EmbedMissing(ctx, s.batchLimit)
	if err != nil {
		return fmt.Errorf("embedding sweep failed: %w", err)
	}

	if result.Embedded > 0 || result.Failed > 0 {
		log.Printf("Embedding sweep: %d embedded, %d failed", result.Embedded, result.Failed)
	}

	return nil
}
