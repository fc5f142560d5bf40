package service

import (
	"context"
	"log"
	"time"

	"github.com/cloo-solutions/converso/internal/domain"
	"github.com/cloo-solutions/converso/internal/pagination"
	"github.com/cloo-solutions/converso/internal/telemetry"
	"github.com/google/uuid"
)

// ChunkRepositoryInterface defines the repository interface for knowledge chunk persistence
type ChunkRepositoryInterface interface {
	Upsert(ctx context.Context, c *domain.KnowledgeChunk) error
	GetByID(ctx context.Context, id string) (*domain.KnowledgeChunk, error)
	Delete(ctx context.Context, id string) error
	UpdateEmbedding(ctx context.Context, id string, embedding []float32) error
	ListMissingEmbeddings(ctx context.Context, limit int) ([]*domain.KnowledgeChunk, error)
	Search(ctx context.Context, embedding []float32, k int, lexicalFilter string) ([]*RetrievedChunk, error)
	ListWithCursor(ctx context.Context, cursor *pagination.Cursor, limit int) (*ChunkPageResult, error)
	Count(ctx context.Context) (int64, error)
}

// RetrievedChunk is a knowledge chunk ranked by cosine distance to a query.
type RetrievedChunk struct {
	Chunk    *domain.KnowledgeChunk
	Distance float64
}

type ChunkPageResult struct {
	Items      []*domain.KnowledgeChunk
	NextCursor string
	HasMore    bool
}

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// KnowledgeService handles business logic for content-addressed knowledge chunks
type KnowledgeService struct {
	chunkRepo ChunkRepositoryInterface
	embedder  EmbeddingClient
	txRunner  TxRunner
}

// NewKnowledgeService creates a new KnowledgeService instance
func NewKnowledgeService(chunkRepo ChunkRepositoryInterface, embedder EmbeddingClient, txRunner TxRunner) *KnowledgeService {
	return &KnowledgeService{
		chunkRepo: chunkRepo,
		embedder:  embedder,
		txRunner:  txRunner,
	}
}

// UpsertChunkInput represents the input for storing a single chunk
type UpsertChunkInput struct {
	Content string
	Meta    map[string]string
}

// EditChunkInput represents the input for replacing a chunk's content
type EditChunkInput struct {
	ChunkID string
	Content string
	Meta    map[string]string
}

// IngestDocumentInput represents the input for splitting and storing a document
type IngestDocumentInput struct {
	Text string
	Meta map[string]string
}

type SearchInput struct {
	Query         string
	K             int
	LexicalFilter string
}

type ListChunksInput struct {
	Cursor string
	Limit  int
}

type ListChunksOutput struct {
	Items   []*domain.KnowledgeChunk
	Cursor  string
	HasMore bool
}

// EmbedMissingResult reports the outcome of one embedding sweep pass.
// UpdatedIDs lists the chunks whose vectors were actually stored; a
// failed row appears only in the Failed count.
type EmbedMissingResult struct {
	Embedded   int
	Failed     int
	UpdatedIDs []string
}

// Upsert stores a chunk keyed by the hash of its normalized content.
// Storing identical content again refreshes metadata without losing the
// existing embedding.
func (s *KnowledgeService) Upsert(ctx context.Context, input UpsertChunkInput) (*domain.KnowledgeChunk, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.Upsert", telemetry.SpanAttributes{
		Operation: "upsert",
	})
	defer span.End()

	chunk, err := domain.NewKnowledgeChunk(input.Content, input.Meta, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	if err := s.chunkRepo.Upsert(ctx, chunk); err != nil {
		return nil, err
	}

	return chunk, nil
}

// IngestDocument splits a document into chunks and stores them all in a
// single transaction.
func (s *KnowledgeService) IngestDocument(ctx context.Context, input IngestDocumentInput) ([]*domain.KnowledgeChunk, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.IngestDocument", telemetry.SpanAttributes{
		Operation: "ingest",
	})
	defer span.End()

	parts := domain.SplitDocument(input.Text)
	if len(parts) == 0 {
		return nil, domain.ErrEmptyChunkText
	}

	now := time.Now().UTC()
	chunks := make([]*domain.KnowledgeChunk, 0, len(parts))
	for _, part := range parts {
		chunk, err := domain.NewKnowledgeChunk(part, input.Meta, now)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}

	err := s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		for _, chunk := range chunks {
			if err := repos.Chunks().Upsert(ctx, chunk); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return chunks, nil
}

// Edit replaces a chunk's content. Changed content hashes to a new id, so
// the old row is removed and a fresh row without an embedding takes its
// place. Content that normalizes to the same text keeps the id and the
// stored embedding, only metadata is refreshed.
func (s *KnowledgeService) Edit(ctx context.Context, input EditChunkInput) (*domain.KnowledgeChunk, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.Edit", telemetry.SpanAttributes{
		ChunkID:   input.ChunkID,
		Operation: "edit",
	})
	defer span.End()

	existing, err := s.chunkRepo.GetByID(ctx, input.ChunkID)
	if err != nil {
		return nil, err
	}

	replacement, err := domain.NewKnowledgeChunk(input.Content, input.Meta, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	if replacement.ID == existing.ID {
		if err := s.chunkRepo.Upsert(ctx, replacement); err != nil {
			return nil, err
		}
		replacement.Embedding = existing.Embedding
		return replacement, nil
	}

	err = s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Chunks().Delete(ctx, existing.ID); err != nil {
			return err
		}
		return repos.Chunks().Upsert(ctx, replacement)
	})
	if err != nil {
		return nil, err
	}

	return replacement, nil
}

// GetByID retrieves a chunk by its content hash
func (s *KnowledgeService) GetByID(ctx context.Context, id string) (*domain.KnowledgeChunk, error) {
	return s.chunkRepo.GetByID(ctx, id)
}

// Delete removes a chunk by its content hash
func (s *KnowledgeService) Delete(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.Delete", telemetry.SpanAttributes{
		ChunkID:   id,
		Operation: "delete",
	})
	defer span.End()

	return s.chunkRepo.Delete(ctx, id)
}

// Embed generates and stores the embedding for a single chunk
func (s *KnowledgeService) Embed(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.Embed", telemetry.SpanAttributes{
		ChunkID:   id,
		Operation: "embed",
	})
	defer span.End()

	chunk, err := s.chunkRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	embedding, err := s.embedder.GenerateEmbedding(ctx, chunk.Content)
	if err != nil {
		return err
	}

	return s.chunkRepo.UpdateEmbedding(ctx, chunk.ID, embedding)
}

// EmbedMissing embeds up to limit chunks that have no stored embedding.
// Each row is processed independently so one provider failure does not
// stall the rest of the batch.
func (s *KnowledgeService) EmbedMissing(ctx context.Context, limit int) (*EmbedMissingResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.EmbedMissing", telemetry.SpanAttributes{
		Operation: "embed_missing",
	})
	defer span.End()

	chunks, err := s.chunkRepo.ListMissingEmbeddings(ctx, limit)
	if err != nil {
		return nil, err
	}

	result := &EmbedMissingResult{}
	for _, chunk := range chunks {
		embedding, err := s.embedder.GenerateEmbedding(ctx, chunk.Content)
		if err != nil {
			log.Printf("knowledge: embedding failed for chunk %s: %v", chunk.ID, err)
			result.Failed++
			continue
		}
		if err := s.chunkRepo.UpdateEmbedding(ctx, chunk.ID, embedding); err != nil {
			log.Printf("knowledge: storing embedding failed for chunk %s: %v", chunk.ID, err)
			result.Failed++
			continue
		}
		result.Embedded++
		result.UpdatedIDs = append(result.UpdatedIDs, chunk.ID)
	}

	return result, nil
}

// Search embeds the query and returns the k nearest embedded chunks by
// cosine distance, closest first. Chunks without embeddings never appear.
func (s *KnowledgeService) Search(ctx context.Context, input SearchInput) ([]*RetrievedChunk, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.Search", telemetry.SpanAttributes{
		Operation: "search",
	})
	defer span.End()

	queryEmbedding, err := s.embedder.GenerateEmbedding(ctx, input.Query)
	if err != nil {
		return nil, domain.ErrEmbeddingUnavailable
	}

	return s.chunkRepo.Search(ctx, queryEmbedding, input.K, input.LexicalFilter)
}

// SearchByVector ranks chunks against an already-computed query vector,
// letting callers embed once and reuse the result.
func (s *KnowledgeService) SearchByVector(ctx context.Context, vec []float32, k int, lexicalFilter string) ([]*RetrievedChunk, error) {
	return s.chunkRepo.Search(ctx, vec, k, lexicalFilter)
}

func (s *KnowledgeService) ListChunks(ctx context.Context, input ListChunksInput) (*ListChunksOutput, error) {
	cursor, _ := pagination.DecodeCursor(input.Cursor)
	limit := pagination.ClampLimit(input.Limit)

	result, err := s.chunkRepo.ListWithCursor(ctx, cursor, limit)
	if err != nil {
		return nil, err
	}

	return &ListChunksOutput{
		Items:   result.Items,
		Cursor:  result.NextCursor,
		HasMore: result.HasMore,
	}, nil
}

func (s *KnowledgeService) Count(ctx context.Context) (int64, error) {
	return s.chunkRepo.Count(ctx)
}
