//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/cloo-solutions/converso/internal/domain"
	"github.com/cloo-solutions/converso/internal/pagination"
	"github.com/cloo-solutions/converso/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEmbedding(a, b float32) []float32 {
	v := make([]float32, 1536)
	v[0] = a
	v[1] = b
	return v
}

func mustChunk(t *testing.T, text string, meta map[string]string, now time.Time) *domain.KnowledgeChunk {
	t.Helper()
	c, err := domain.NewKnowledgeChunk(text, meta, now)
	require.NoError(t, err)
	return c
}

func TestChunkRepository_UpsertAndGet(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewChunkRepository(pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	c := mustChunk(t, "minimum balance is AED 3000", map[string]string{"source": "faq"}, now)

	require.NoError(t, repo.Upsert(ctx, c))

	retrieved, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, retrieved.ID)
	assert.Equal(t, "minimum balance is AED 3000", retrieved.Content)
	assert.Equal(t, "faq", retrieved.Meta["source"])
	assert.False(t, retrieved.HasEmbedding())
}

func TestChunkRepository_Upsert_ConflictKeepsEmbedding(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewChunkRepository(pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	c := mustChunk(t, "branch hours are 9 to 5", map[string]string{"source": "faq"}, now)
	require.NoError(t, repo.Upsert(ctx, c))
	require.NoError(t, repo.UpdateEmbedding(ctx, c.ID, testEmbedding(1, 0)))

	// Same normalized content hashes to the same id. The re-upsert
	// refreshes metadata but must not clear the stored embedding.
	again := mustChunk(t, "branch  hours are\n9 to 5", map[string]string{"source": "handbook"}, now.Add(time.Second))
	require.Equal(t, c.ID, again.ID)
	require.NoError(t, repo.Upsert(ctx, again))

	retrieved, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "handbook", retrieved.Meta["source"])
	assert.True(t, retrieved.HasEmbedding())
}

func TestChunkRepository_GetByID_NotFound(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewChunkRepository(pool)

	_, err := repo.GetByID(ctx, "does-not-exist")
	assert.ErrorIs(t, err, domain.ErrChunkNotFound)
}

func TestChunkRepository_Delete(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewChunkRepository(pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	c := mustChunk(t, "to delete", nil, now)
	require.NoError(t, repo.Upsert(ctx, c))

	require.NoError(t, repo.Delete(ctx, c.ID))

	_, err := repo.GetByID(ctx, c.ID)
	assert.ErrorIs(t, err, domain.ErrChunkNotFound)

	err = repo.Delete(ctx, c.ID)
	assert.ErrorIs(t, err, domain.ErrChunkNotFound)
}

func TestChunkRepository_UpdateEmbedding_NotFound(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewChunkRepository(pool)

	err := repo.UpdateEmbedding(ctx, "does-not-exist", testEmbedding(1, 0))
	assert.ErrorIs(t, err, domain.ErrChunkNotFound)
}

func TestChunkRepository_ListMissingEmbeddings(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewChunkRepository(pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	older := mustChunk(t, "older pending chunk", nil, now)
	newer := mustChunk(t, "newer pending chunk", nil, now.Add(time.Second))
	embedded := mustChunk(t, "already embedded chunk", nil, now)

	require.NoError(t, repo.Upsert(ctx, older))
	require.NoError(t, repo.Upsert(ctx, newer))
	require.NoError(t, repo.Upsert(ctx, embedded))
	require.NoError(t, repo.UpdateEmbedding(ctx, embedded.ID, testEmbedding(1, 0)))

	missing, err := repo.ListMissingEmbeddings(ctx, 10)
	require.NoError(t, err)
	require.Len(t, missing, 2)
	assert.Equal(t, older.ID, missing[0].ID)
	assert.Equal(t, newer.ID, missing[1].ID)

	limited, err := repo.ListMissingEmbeddings(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestChunkRepository_Search_RanksByDistance(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewChunkRepository(pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	near := mustChunk(t, "fees for international transfers", map[string]string{"topic": "fees"}, now)
	mid := mustChunk(t, "exchange rates update daily", nil, now)
	far := mustChunk(t, "branch parking is free", nil, now)
	pending := mustChunk(t, "not yet embedded", nil, now)

	for _, c := range []*domain.KnowledgeChunk{near, mid, far, pending} {
		require.NoError(t, repo.Upsert(ctx, c))
	}
	require.NoError(t, repo.UpdateEmbedding(ctx, near.ID, testEmbedding(1, 0)))
	require.NoError(t, repo.UpdateEmbedding(ctx, mid.ID, testEmbedding(0.7, 0.7)))
	require.NoError(t, repo.UpdateEmbedding(ctx, far.ID, testEmbedding(0, 1)))

	hits, err := repo.Search(ctx, testEmbedding(1, 0), 10, "")
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, near.ID, hits[0].Chunk.ID)
	assert.Equal(t, mid.ID, hits[1].Chunk.ID)
	assert.Equal(t, far.ID, hits[2].Chunk.ID)
	assert.Less(t, hits[0].Distance, hits[1].Distance)

	top, err := repo.Search(ctx, testEmbedding(1, 0), 1, "")
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, near.ID, top[0].Chunk.ID)
}

func TestChunkRepository_Search_LexicalFilter(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewChunkRepository(pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	fees := mustChunk(t, "fees for international transfers", nil, now)
	rates := mustChunk(t, "exchange rates update daily", map[string]string{"topic": "rates"}, now)

	require.NoError(t, repo.Upsert(ctx, fees))
	require.NoError(t, repo.Upsert(ctx, rates))
	require.NoError(t, repo.UpdateEmbedding(ctx, fees.ID, testEmbedding(1, 0)))
	require.NoError(t, repo.UpdateEmbedding(ctx, rates.ID, testEmbedding(0, 1)))

	hits, err := repo.Search(ctx, testEmbedding(1, 0), 10, "FEES")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, fees.ID, hits[0].Chunk.ID)

	// The filter also matches metadata values.
	hits, err = repo.Search(ctx, testEmbedding(1, 0), 10, "rates")
	require.NoError(t, err)
	require.Len(t, hits, 2)
}

func TestChunkRepository_ListWithCursor(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewChunkRepository(pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	for i := 0; i < 3; i++ {
		c := mustChunk(t, "chunk number "+string(rune('a'+i)), nil, now.Add(time.Duration(i)*time.Second))
		require.NoError(t, repo.Upsert(ctx, c))
	}

	page1, err := repo.ListWithCursor(ctx, nil, 2)
	require.NoError(t, err)
	assert.Len(t, page1.Items, 2)
	assert.True(t, page1.HasMore)
	require.NotEmpty(t, page1.NextCursor)

	cursor, err := pagination.DecodeCursor(page1.NextCursor)
	require.NoError(t, err)

	page2, err := repo.ListWithCursor(ctx, cursor, 2)
	require.NoError(t, err)
	assert.Len(t, page2.Items, 1)
	assert.False(t, page2.HasMore)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}
