package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/cloo-solutions/converso/internal/api"
	"github.com/cloo-solutions/converso/internal/domain"
	"github.com/cloo-solutions/converso/internal/service"
	"github.com/go-chi/chi/v5"
)

type KnowledgeService interface {
	Upsert(ctx context.Context, input service.UpsertChunkInput) (*domain.KnowledgeChunk, error)
	IngestDocument(ctx context.Context, input service.IngestDocumentInput) ([]*domain.KnowledgeChunk, error)
	Edit(ctx context.Context, input service.EditChunkInput) (*domain.KnowledgeChunk, error)
	GetByID(ctx context.Context, id string) (*domain.KnowledgeChunk, error)
	Delete(ctx context.Context, id string) error
	Embed(ctx context.Context, id string) error
	EmbedMissing(ctx context.Context, limit int) (*service.EmbedMissingResult, error)
	Search(ctx context.Context, input service.SearchInput) ([]*service.RetrievedChunk, error)
	ListChunks(ctx context.Context, input service.ListChunksInput) (*service.ListChunksOutput, error)
}

type KnowledgeHandler struct {
	svc KnowledgeService
}

func NewKnowledgeHandler(svc KnowledgeService) *KnowledgeHandler {
	return &KnowledgeHandler{svc: svc}
}

type UpsertChunkRequest struct {
	Text string            `json:"text"`
	Meta map[string]string `json:"meta"`
}

type SearchRequest struct {
	Query  string `json:"query"`
	K      int    `json:"k"`
	Filter string `json:"filter"`
}

type EmbedMissingRequest struct {
	Limit int `json:"limit"`
}

type ChunkResponse struct {
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	Meta      map[string]string `json:"meta"`
	Embedded  bool              `json:"embedded"`
	CreatedAt string            `json:"created_at"`
	UpdatedAt string            `json:"updated_at"`
}

type SearchHitResponse struct {
	Chunk    *ChunkResponse `json:"chunk"`
	Distance float64        `json:"distance"`
}

func chunkToResponse(c *domain.KnowledgeChunk) *ChunkResponse {
	return &ChunkResponse{
		ID:        c.ID,
		Text:      c.Content,
		Meta:      c.Meta,
		Embedded:  c.HasEmbedding(),
		CreatedAt: c.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt: c.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

func (h *KnowledgeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req UpsertChunkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Text == "" {
		api.Error(w, http.StatusBadRequest, "text is required")
		return
	}

	chunk, err := h.svc.Upsert(r.Context(), service.UpsertChunkInput{
		Content: req.Text,
		Meta:    req.Meta,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, chunkToResponse(chunk))
}

func (h *KnowledgeHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req UpsertChunkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Text == "" {
		api.Error(w, http.StatusBadRequest, "text is required")
		return
	}

	chunks, err := h.svc.IngestDocument(r.Context(), service.IngestDocumentInput{
		Text: req.Text,
		Meta: req.Meta,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*ChunkResponse, len(chunks))
	for i, c := range chunks {
		responses[i] = chunkToResponse(c)
	}

	api.Success(w, http.StatusCreated, responses)
}

func (h *KnowledgeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	chunk, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, chunkToResponse(chunk))
}

func (h *KnowledgeHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	var req UpsertChunkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Text == "" {
		api.Error(w, http.StatusBadRequest, "text is required")
		return
	}

	chunk, err := h.svc.Edit(r.Context(), service.EditChunkInput{
		ChunkID: id,
		Content: req.Text,
		Meta:    req.Meta,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, chunkToResponse(chunk))
}

func (h *KnowledgeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (h *KnowledgeHandler) Embed(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.svc.Embed(r.Context(), id); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]string{"id": id, "status": "embedded"})
}

func (h *KnowledgeHandler) EmbedMissing(w http.ResponseWriter, r *http.Request) {
	var req EmbedMissingRequest
	if r.Body != nil {
		// body is optional, defaults apply
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	result, err := h.svc.EmbedMissing(r.Context(), req.Limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	updated := result.UpdatedIDs
	if updated == nil {
		updated = []string{}
	}
	api.Success(w, http.StatusOK, map[string]any{
		"embedded":    result.Embedded,
		"failed":      result.Failed,
		"updated_ids": updated,
	})
}

func (h *KnowledgeHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Query == "" {
		api.Error(w, http.StatusBadRequest, "query is required")
		return
	}

	hits, err := h.svc.Search(r.Context(), service.SearchInput{
		Query:         req.Query,
		K:             req.K,
		LexicalFilter: req.Filter,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*SearchHitResponse, len(hits))
	for i, hit := range hits {
		responses[i] = &SearchHitResponse{
			Chunk:    chunkToResponse(hit.Chunk),
			Distance: hit.Distance,
		}
	}

	api.Success(w, http.StatusOK, responses)
}

type ChunkListResponse struct {
	Items   []*ChunkResponse `json:"items"`
	Cursor  string           `json:"cursor,omitempty"`
	HasMore bool             `json:"has_more"`
}

func (h *KnowledgeHandler) List(w http.ResponseWriter, r *http.Request) {
	cursor := r.URL.Query().Get("cursor")
	limitStr := r.URL.Query().Get("limit")
	limit := 20
	if limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	output, err := h.svc.ListChunks(r.Context(), service.ListChunksInput{
		Cursor: cursor,
		Limit:  limit,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*ChunkResponse, len(output.Items))
	for i, c := range output.Items {
		responses[i] = chunkToResponse(c)
	}

	api.Success(w, http.StatusOK, ChunkListResponse{
		Items:   responses,
		Cursor:  output.Cursor,
		HasMore: output.HasMore,
	})
}
