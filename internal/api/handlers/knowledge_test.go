package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cloo-solutions/converso/internal/domain"
	"github.com/cloo-solutions/converso/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockKnowledgeService struct {
	mock.Mock
}

func (m *MockKnowledgeService) Upsert(ctx context.Context, input service.UpsertChunkInput) (*domain.KnowledgeChunk, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KnowledgeChunk), args.Error(1)
}

func (m *MockKnowledgeService) IngestDocument(ctx context.Context, input service.IngestDocumentInput) ([]*domain.KnowledgeChunk, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.KnowledgeChunk), args.Error(1)
}

func (m *MockKnowledgeService) Edit(ctx context.Context, input service.EditChunkInput) (*domain.KnowledgeChunk, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KnowledgeChunk), args.Error(1)
}

func (m *MockKnowledgeService) GetByID(ctx context.Context, id string) (*domain.KnowledgeChunk, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KnowledgeChunk), args.Error(1)
}

func (m *MockKnowledgeService) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockKnowledgeService) Embed(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockKnowledgeService) EmbedMissing(ctx context.Context, limit int) (*service.EmbedMissingResult, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.EmbedMissingResult), args.Error(1)
}

func (m *MockKnowledgeService) Search(ctx context.Context, input service.SearchInput) ([]*service.RetrievedChunk, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*service.RetrievedChunk), args.Error(1)
}

func (m *MockKnowledgeService) ListChunks(ctx context.Context, input service.ListChunksInput) (*service.ListChunksOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ListChunksOutput), args.Error(1)
}

func newTestChunk(t *testing.T) *domain.KnowledgeChunk {
	t.Helper()
	chunk, err := domain.NewKnowledgeChunk("minimum balance is AED 3000", map[string]string{"source": "faq"}, time.Now().UTC())
	require.NoError(t, err)
	return chunk
}

func requestWithID(method, target, id string, body []byte) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestKnowledgeHandler_Create_Success(t *testing.T) {
	mockSvc := new(MockKnowledgeService)
	handler := NewKnowledgeHandler(mockSvc)

	chunk := newTestChunk(t)
	mockSvc.On("Upsert", mock.Anything, mock.MatchedBy(func(input service.UpsertChunkInput) bool {
		return input.Content == "minimum balance is AED 3000" && input.Meta["source"] == "faq"
	})).Return(chunk, nil)

	body := `{"text":"minimum balance is AED 3000","meta":{"source":"faq"}}`
	req := httptest.NewRequest(http.MethodPost, "/kb", bytes.NewReader([]byte(body)))
	w := httptest.NewRecorder()

	handler.Create(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, chunk.ID, data["id"])
	assert.Equal(t, false, data["embedded"])
	mockSvc.AssertExpectations(t)
}

func TestKnowledgeHandler_Create_MissingText(t *testing.T) {
	mockSvc := new(MockKnowledgeService)
	handler := NewKnowledgeHandler(mockSvc)

	req := httptest.NewRequest(http.MethodPost, "/kb", bytes.NewReader([]byte(`{"meta":{}}`)))
	w := httptest.NewRecorder()

	handler.Create(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "text is required")
	mockSvc.AssertNotCalled(t, "Upsert")
}

func TestKnowledgeHandler_Create_InvalidJSON(t *testing.T) {
	mockSvc := new(MockKnowledgeService)
	handler := NewKnowledgeHandler(mockSvc)

	req := httptest.NewRequest(http.MethodPost, "/kb", bytes.NewReader([]byte(`{invalid`)))
	w := httptest.NewRecorder()

	handler.Create(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid request body")
}

func TestKnowledgeHandler_Ingest_Success(t *testing.T) {
	mockSvc := new(MockKnowledgeService)
	handler := NewKnowledgeHandler(mockSvc)

	chunk := newTestChunk(t)
	mockSvc.On("IngestDocument", mock.Anything, mock.Anything).
		Return([]*domain.KnowledgeChunk{chunk, chunk}, nil)

	body := `{"text":"first paragraph\n\nsecond paragraph"}`
	req := httptest.NewRequest(http.MethodPost, "/kb/ingest", bytes.NewReader([]byte(body)))
	w := httptest.NewRecorder()

	handler.Ingest(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp["data"], 2)
}

func TestKnowledgeHandler_Get_NotFound(t *testing.T) {
	mockSvc := new(MockKnowledgeService)
	handler := NewKnowledgeHandler(mockSvc)

	mockSvc.On("GetByID", mock.Anything, "missing").Return(nil, domain.ErrChunkNotFound)

	req := requestWithID(http.MethodGet, "/kb/missing", "missing", nil)
	w := httptest.NewRecorder()

	handler.Get(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestKnowledgeHandler_Update_Success(t *testing.T) {
	mockSvc := new(MockKnowledgeService)
	handler := NewKnowledgeHandler(mockSvc)

	chunk := newTestChunk(t)
	mockSvc.On("Edit", mock.Anything, mock.MatchedBy(func(input service.EditChunkInput) bool {
		return input.ChunkID == "abc123" && input.Content == "minimum balance is AED 5000"
	})).Return(chunk, nil)

	body := `{"text":"minimum balance is AED 5000"}`
	req := requestWithID(http.MethodPut, "/kb/abc123", "abc123", []byte(body))
	w := httptest.NewRecorder()

	handler.Update(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestKnowledgeHandler_Delete_Success(t *testing.T) {
	mockSvc := new(MockKnowledgeService)
	handler := NewKnowledgeHandler(mockSvc)

	mockSvc.On("Delete", mock.Anything, "abc123").Return(nil)

	req := requestWithID(http.MethodDelete, "/kb/abc123", "abc123", nil)
	w := httptest.NewRecorder()

	handler.Delete(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "deleted")
}

func TestKnowledgeHandler_EmbedMissing_Success(t *testing.T) {
	mockSvc := new(MockKnowledgeService)
	handler := NewKnowledgeHandler(mockSvc)

	mockSvc.On("EmbedMissing", mock.Anything, 25).Return(&service.EmbedMissingResult{
		Embedded:   2,
		Failed:     1,
		UpdatedIDs: []string{"chunk-a", "chunk-b"},
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/kb/embed-missing", bytes.NewReader([]byte(`{"limit":25}`)))
	w := httptest.NewRecorder()

	handler.EmbedMissing(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, float64(2), data["embedded"])
	assert.Equal(t, float64(1), data["failed"])
	assert.Equal(t, []interface{}{"chunk-a", "chunk-b"}, data["updated_ids"])
}

func TestKnowledgeHandler_Search_Success(t *testing.T) {
	mockSvc := new(MockKnowledgeService)
	handler := NewKnowledgeHandler(mockSvc)

	chunk := newTestChunk(t)
	mockSvc.On("Search", mock.Anything, mock.MatchedBy(func(input service.SearchInput) bool {
		return input.Query == "minimum balance" && input.K == 3 && input.LexicalFilter == "balance"
	})).Return([]*service.RetrievedChunk{{Chunk: chunk, Distance: 0.12}}, nil)

	body := `{"query":"minimum balance","k":3,"filter":"balance"}`
	req := httptest.NewRequest(http.MethodPost, "/kb/search", bytes.NewReader([]byte(body)))
	w := httptest.NewRecorder()

	handler.Search(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	hits := resp["data"].([]interface{})
	require.Len(t, hits, 1)
	hit := hits[0].(map[string]interface{})
	assert.Equal(t, 0.12, hit["distance"])
}

func TestKnowledgeHandler_Search_EmbeddingDown(t *testing.T) {
	mockSvc := new(MockKnowledgeService)
	handler := NewKnowledgeHandler(mockSvc)

	mockSvc.On("Search", mock.Anything, mock.Anything).Return(nil, domain.ErrEmbeddingUnavailable)

	body := `{"query":"minimum balance"}`
	req := httptest.NewRequest(http.MethodPost, "/kb/search", bytes.NewReader([]byte(body)))
	w := httptest.NewRecorder()

	handler.Search(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestKnowledgeHandler_List_Success(t *testing.T) {
	mockSvc := new(MockKnowledgeService)
	handler := NewKnowledgeHandler(mockSvc)

	chunk := newTestChunk(t)
	mockSvc.On("ListChunks", mock.Anything, mock.MatchedBy(func(input service.ListChunksInput) bool {
		return input.Limit == 50 && input.Cursor == "abc"
	})).Return(&service.ListChunksOutput{
		Items:   []*domain.KnowledgeChunk{chunk},
		HasMore: false,
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/kb?limit=50&cursor=abc", nil)
	w := httptest.NewRecorder()

	handler.List(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Len(t, data["items"], 1)
	assert.Equal(t, false, data["has_more"])
}
