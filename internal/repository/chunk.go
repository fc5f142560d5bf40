package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cloo-solutions/converso/internal/domain"
	"github.com/cloo-solutions/converso/internal/pagination"
	"github.com/cloo-solutions/converso/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// ChunkRepository handles persistence of content-addressed knowledge chunks.
type ChunkRepository struct {
	db dbtx
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool}
}

func NewChunkRepositoryWithTx(tx pgx.Tx) *ChunkRepository {
	return &ChunkRepository{db: tx}
}

// Upsert inserts the chunk keyed by its content hash. A conflicting id
// means identical normalized content already exists: metadata and
// updated_at are refreshed, the stored embedding is left untouched.
func (r *ChunkRepository) Upsert(ctx context.Context, c *domain.KnowledgeChunk) error {
	meta, err := encodeMeta(c.Meta)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO kb_chunks (id, content, meta, embedding, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET meta = EXCLUDED.meta, updated_at = EXCLUDED.updated_at`,
		c.ID, c.Content, meta, nullableVector(c.Embedding), c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (r *ChunkRepository) GetByID(ctx context.Context, id string) (*domain.KnowledgeChunk, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, content, meta, embedding, created_at, updated_at
		 FROM kb_chunks WHERE id = $1`,
		id,
	)
	c, err := scanChunk(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrChunkNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *ChunkRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM kb_chunks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrChunkNotFound
	}
	return nil
}

func (r *ChunkRepository) UpdateEmbedding(ctx context.Context, id string, embedding []float32) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE kb_chunks SET embedding = $1, updated_at = $2 WHERE id = $3`,
		pgvector.NewVector(embedding), time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrChunkNotFound
	}
	return nil
}

// ListMissingEmbeddings returns up to limit chunks that have no stored
// embedding, oldest first, so the embedding sweep makes forward progress.
func (r *ChunkRepository) ListMissingEmbeddings(ctx context.Context, limit int) ([]*domain.KnowledgeChunk, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, content, meta, embedding, created_at, updated_at
		 FROM kb_chunks WHERE embedding IS NULL
		 ORDER BY updated_at ASC, id ASC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunkRows(rows)
}

// Search ranks embedded chunks by cosine distance to the query vector,
// ascending, with a deterministic tie-break. An optional lexical filter
// narrows candidates by substring over content or metadata before ranking.
func (r *ChunkRepository) Search(ctx context.Context, embedding []float32, k int, lexicalFilter string) ([]*service.RetrievedChunk, error) {
	if k <= 0 {
		k = 5
	}

	query := `
		SELECT id, content, meta, embedding, created_at, updated_at,
		       embedding <=> $1 AS distance
		FROM kb_chunks
		WHERE embedding IS NOT NULL
		ORDER BY distance ASC, updated_at DESC, id ASC
		LIMIT $2`
	args := []any{pgvector.NewVector(embedding), k}

	if lexicalFilter != "" {
		query = `
			SELECT id, content, meta, embedding, created_at, updated_at,
			       embedding <=> $1 AS distance
			FROM kb_chunks
			WHERE embedding IS NOT NULL
			  AND (content ILIKE '%' || $2 || '%' OR meta::text ILIKE '%' || $2 || '%')
			ORDER BY distance ASC, updated_at DESC, id ASC
			LIMIT $3`
		args = []any{pgvector.NewVector(embedding), lexicalFilter, k}
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]*service.RetrievedChunk, 0)
	for rows.Next() {
		var (
			c        domain.KnowledgeChunk
			meta     []byte
			vec      *pgvector.Vector
			distance float64
		)
		if err := rows.Scan(&c.ID, &c.Content, &meta, &vec, &c.CreatedAt, &c.UpdatedAt, &distance); err != nil {
			return nil, err
		}
		if err := decodeMeta(meta, &c.Meta); err != nil {
			return nil, err
		}
		if vec != nil {
			c.Embedding = vec.Slice()
		}
		results = append(results, &service.RetrievedChunk{Chunk: &c, Distance: distance})
	}
	return results, rows.Err()
}

func (r *ChunkRepository) ListWithCursor(ctx context.Context, cursor *pagination.Cursor, limit int) (*service.ChunkPageResult, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows pgx.Rows
	var err error

	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT id, content, meta, embedding, created_at, updated_at
			 FROM kb_chunks
			 WHERE (updated_at, id) < ($1, $2)
			 ORDER BY updated_at DESC, id DESC
			 LIMIT $3`,
			cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT id, content, meta, embedding, created_at, updated_at
			 FROM kb_chunks
			 ORDER BY updated_at DESC, id DESC
			 LIMIT $1`,
			limit+1,
		)
	}

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanChunkRows(rows)
	if err != nil {
		return nil, err
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	var nextCursor string
	if hasMore && len(items) > 0 {
		last := items[len(items)-1]
		nextCursor = pagination.EncodeCursor(last.ID, last.UpdatedAt)
	}

	return &service.ChunkPageResult{
		Items:      items,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

func (r *ChunkRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM kb_chunks`).Scan(&count)
	return count, err
}

func scanChunk(row rowScanner) (*domain.KnowledgeChunk, error) {
	var c domain.KnowledgeChunk
	var meta []byte
	var vec *pgvector.Vector
	if err := row.Scan(&c.ID, &c.Content, &meta, &vec, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if err := decodeMeta(meta, &c.Meta); err != nil {
		return nil, err
	}
	if vec != nil {
		c.Embedding = vec.Slice()
	}
	return &c, nil
}

func scanChunkRows(rows pgx.Rows) ([]*domain.KnowledgeChunk, error) {
	var results []*domain.KnowledgeChunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

func encodeMeta(meta map[string]string) ([]byte, error) {
	if meta == nil {
		meta = map[string]string{}
	}
	return json.Marshal(meta)
}

func decodeMeta(raw []byte, dst *map[string]string) error {
	if len(raw) == 0 {
		*dst = map[string]string{}
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func nullableVector(embedding []float32) *pgvector.Vector {
	if len(embedding) == 0 {
		return nil
	}
	v := pgvector.NewVector(embedding)
	return &v
}
