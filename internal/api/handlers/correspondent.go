package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/cloo-solutions/converso/internal/api"
	"github.com/cloo-solutions/converso/internal/domain"
	"github.com/cloo-solutions/converso/internal/service"
	"github.com/go-chi/chi/v5"
)

type CorrespondentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Correspondent, error)
	ListCorrespondents(ctx context.Context, input service.ListCorrespondentsInput) (*service.ListCorrespondentsOutput, error)
}

type CorrespondentHandler struct {
	svc CorrespondentReader
}

func NewCorrespondentHandler(svc CorrespondentReader) *CorrespondentHandler {
	return &CorrespondentHandler{svc: svc}
}

type CorrespondentResponse struct {
	ID              string             `json:"id"`
	Phone           string             `json:"phone"`
	Name            string             `json:"name,omitempty"`
	Company         string             `json:"company,omitempty"`
	Salary          *float64           `json:"salary,omitempty"`
	Address         string             `json:"address,omitempty"`
	Notes           string             `json:"notes,omitempty"`
	FieldConfidence map[string]float64 `json:"field_confidence"`
	LastSeenAt      string             `json:"last_seen_at"`
	CreatedAt       string             `json:"created_at"`
}

func correspondentToResponse(c *domain.Correspondent) *CorrespondentResponse {
	return &CorrespondentResponse{
		ID:              c.ID,
		Phone:           c.Phone,
		Name:            c.Name,
		Company:         c.Company,
		Salary:          c.Salary,
		Address:         c.Address,
		Notes:           c.Notes,
		FieldConfidence: c.FieldConfidence,
		LastSeenAt:      c.LastSeenAt.Format("2006-01-02T15:04:05Z"),
		CreatedAt:       c.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

func (h *CorrespondentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	correspondent, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, correspondentToResponse(correspondent))
}

type CorrespondentListResponse struct {
	Items   []*CorrespondentResponse `json:"items"`
	Cursor  string                   `json:"cursor,omitempty"`
	HasMore bool                     `json:"has_more"`
}

func (h *CorrespondentHandler) List(w http.ResponseWriter, r *http.Request) {
	cursor := r.URL.Query().Get("cursor")
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	output, err := h.svc.ListCorrespondents(r.Context(), service.ListCorrespondentsInput{
		Cursor: cursor,
		Limit:  limit,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*CorrespondentResponse, len(output.Items))
	for i, c := range output.Items {
		responses[i] = correspondentToResponse(c)
	}

	api.Success(w, http.StatusOK, CorrespondentListResponse{
		Items:   responses,
		Cursor:  output.Cursor,
		HasMore: output.HasMore,
	})
}
