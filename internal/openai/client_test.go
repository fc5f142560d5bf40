package openai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	embeddings [][]float32
	completion string
	err        error

	lastTexts    []string
	lastSystem   string
	lastMessages []ChatMessage
}

func (f *fakeAPI) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	f.lastTexts = texts
	if f.err != nil {
		return nil, f.err
	}
	return f.embeddings, nil
}

func (f *fakeAPI) CreateCompletion(ctx context.Context, system string, messages []ChatMessage) (string, error) {
	f.lastSystem = system
	f.lastMessages = messages
	if f.err != nil {
		return "", f.err
	}
	return f.completion, nil
}

func vectorOfDim(n int) []float32 {
	v := make([]float32, n)
	v[0] = 1
	return v
}

func TestClient_GenerateEmbedding(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the vector for valid text", func(t *testing.T) {
		api := &fakeAPI{embeddings: [][]float32{vectorOfDim(DefaultEmbeddingDimensions)}}
		client := &Client{api: api, dimensions: DefaultEmbeddingDimensions, timeout: DefaultTimeout}

		vec, err := client.GenerateEmbedding(ctx, "hello")

		require.NoError(t, err)
		assert.Len(t, vec, DefaultEmbeddingDimensions)
		assert.Equal(t, []string{"hello"}, api.lastTexts)
	})

	t.Run("rejects empty text", func(t *testing.T) {
		client := &Client{api: &fakeAPI{}, dimensions: DefaultEmbeddingDimensions, timeout: DefaultTimeout}

		_, err := client.GenerateEmbedding(ctx, "")
		assert.ErrorIs(t, err, ErrEmptyText)
	})

	t.Run("rejects wrong dimensions", func(t *testing.T) {
		api := &fakeAPI{embeddings: [][]float32{vectorOfDim(8)}}
		client := &Client{api: api, dimensions: DefaultEmbeddingDimensions, timeout: DefaultTimeout}

		_, err := client.GenerateEmbedding(ctx, "hello")
		assert.ErrorIs(t, err, ErrWrongDimensions)
	})

	t.Run("wraps API errors", func(t *testing.T) {
		api := &fakeAPI{err: errors.New("rate limited")}
		client := &Client{api: api, dimensions: DefaultEmbeddingDimensions, timeout: DefaultTimeout}

		_, err := client.GenerateEmbedding(ctx, "hello")
		assert.ErrorContains(t, err, "rate limited")
	})
}

func TestClient_GenerateEmbeddings_Batch(t *testing.T) {
	ctx := context.Background()

	api := &fakeAPI{embeddings: [][]float32{
		vectorOfDim(DefaultEmbeddingDimensions),
		vectorOfDim(DefaultEmbeddingDimensions),
	}}
	client := &Client{api: api, dimensions: DefaultEmbeddingDimensions, timeout: DefaultTimeout}

	vectors, err := client.GenerateEmbeddings(ctx, []string{"a", "b"})

	require.NoError(t, err)
	assert.Len(t, vectors, 2)
	assert.Equal(t, []string{"a", "b"}, api.lastTexts)
}

func TestClient_Complete(t *testing.T) {
	ctx := context.Background()

	t.Run("passes system and messages through", func(t *testing.T) {
		api := &fakeAPI{completion: "the minimum balance is AED 3000"}
		client := &Client{api: api, dimensions: DefaultEmbeddingDimensions, timeout: DefaultTimeout}

		out, err := client.Complete(ctx, "you are an assistant", []ChatMessage{
			{Role: "user", Content: "what is the minimum balance"},
		})

		require.NoError(t, err)
		assert.Equal(t, "the minimum balance is AED 3000", out)
		assert.Equal(t, "you are an assistant", api.lastSystem)
		require.Len(t, api.lastMessages, 1)
	})

	t.Run("rejects empty message list", func(t *testing.T) {
		client := &Client{api: &fakeAPI{}, dimensions: DefaultEmbeddingDimensions, timeout: DefaultTimeout}

		_, err := client.Complete(ctx, "system", nil)
		assert.ErrorIs(t, err, ErrEmptyText)
	})
}

func TestNewClientFromEnv_MissingKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := NewClientFromEnv()
	assert.ErrorIs(t, err, ErrNoAPIKey)
}
