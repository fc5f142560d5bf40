package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/cloo-solutions/converso/internal/api"
	"github.com/cloo-solutions/converso/internal/domain"
	"github.com/cloo-solutions/converso/internal/service"
	"github.com/go-chi/chi/v5"
)

type MessageReader interface {
	ListMessages(ctx context.Context, input service.ListMessagesInput) (*service.ListMessagesOutput, error)
	GetMessage(ctx context.Context, id string) (*domain.Message, error)
	Stats(ctx context.Context, window time.Duration) (*service.MessageStats, error)
}

type MessageHandler struct {
	svc MessageReader
}

func NewMessageHandler(svc MessageReader) *MessageHandler {
	return &MessageHandler{svc: svc}
}

type MessageResponse struct {
	ID              string                `json:"id"`
	CorrespondentID string                `json:"correspondent_id"`
	InboundText     string                `json:"inbound_text"`
	AnswerText      *string               `json:"answer_text"`
	IntentName      string                `json:"intent_name"`
	IntentScore     int                   `json:"intent_score"`
	RetrievalTrace  []domain.RetrievalHit `json:"retrieval_trace"`
	DeliveryStatus  string                `json:"delivery_status"`
	DeliveryMeta    map[string]any        `json:"delivery_meta,omitempty"`
	CreatedAt       string                `json:"created_at"`
}

func messageToResponse(m *domain.Message) *MessageResponse {
	return &MessageResponse{
		ID:              m.ID,
		CorrespondentID: m.CorrespondentID,
		InboundText:     m.InboundText,
		AnswerText:      m.AnswerText,
		IntentName:      m.IntentName,
		IntentScore:     m.IntentScore,
		RetrievalTrace:  m.RetrievalTrace,
		DeliveryStatus:  string(m.DeliveryStatus),
		DeliveryMeta:    m.DeliveryMeta,
		CreatedAt:       m.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

type MessageListResponse struct {
	Items   []*MessageResponse `json:"items"`
	Cursor  string             `json:"cursor,omitempty"`
	HasMore bool               `json:"has_more"`
}

func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	cursor := r.URL.Query().Get("cursor")
	correspondentID := r.URL.Query().Get("correspondent_id")
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	output, err := h.svc.ListMessages(r.Context(), service.ListMessagesInput{
		CorrespondentID: correspondentID,
		Cursor:          cursor,
		Limit:           limit,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*MessageResponse, len(output.Items))
	for i, m := range output.Items {
		responses[i] = messageToResponse(m)
	}

	api.Success(w, http.StatusOK, MessageListResponse{
		Items:   responses,
		Cursor:  output.Cursor,
		HasMore: output.HasMore,
	})
}

func (h *MessageHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	message, err := h.svc.GetMessage(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, messageToResponse(message))
}

type StatsResponse struct {
	Since    string           `json:"since"`
	Total    int64            `json:"total"`
	ByIntent map[string]int64 `json:"by_intent"`
}

// Stats reports message volume by intent over a trailing window,
// defaulting to 24 hours.
func (h *MessageHandler) Stats(w http.ResponseWriter, r *http.Request) {
	window := 24 * time.Hour
	if hoursStr := r.URL.Query().Get("hours"); hoursStr != "" {
		if parsed, err := strconv.Atoi(hoursStr); err == nil && parsed > 0 {
			window = time.Duration(parsed) * time.Hour
		}
	}

	stats, err := h.svc.Stats(r.Context(), window)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, StatsResponse{
		Since:    stats.Since.Format(time.RFC3339),
		Total:    stats.Total,
		ByIntent: stats.ByIntent,
	})
}
