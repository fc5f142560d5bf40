package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/cloo-solutions/converso/internal/api"
	"github.com/cloo-solutions/converso/internal/service"
)

// ProcessHandler exposes the inbound pipeline directly, bypassing the
// webhook transport. Used by the admin surface and integration tooling.
type ProcessHandler struct {
	pipeline InboundPipeline
}

func NewProcessHandler(pipeline InboundPipeline) *ProcessHandler {
	return &ProcessHandler{pipeline: pipeline}
}

type ProcessRequest struct {
	Phone    string `json:"phone"`
	Text     string `json:"text"`
	Generate bool   `json:"generate"`
}

type ProcessResponse struct {
	MessageID     string                 `json:"message_id"`
	Intent        string                 `json:"intent"`
	IntentScore   int                    `json:"intent_score"`
	Retrieved     []*SearchHitResponse   `json:"retrieved_chunks"`
	Answer        *string                `json:"answer"`
	Correspondent *CorrespondentResponse `json:"correspondent"`
}

func (h *ProcessHandler) Process(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	output, err := h.pipeline.ProcessInbound(r.Context(), service.ProcessInput{
		Phone:    req.Phone,
		Text:     req.Text,
		Generate: req.Generate,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	retrieved := make([]*SearchHitResponse, len(output.Retrieved))
	for i, hit := range output.Retrieved {
		retrieved[i] = &SearchHitResponse{
			Chunk:    chunkToResponse(hit.Chunk),
			Distance: hit.Distance,
		}
	}

	api.Success(w, http.StatusOK, ProcessResponse{
		MessageID:     output.MessageID,
		Intent:        output.Intent,
		IntentScore:   output.IntentScore,
		Retrieved:     retrieved,
		Answer:        output.Answer,
		Correspondent: correspondentToResponse(output.Correspondent),
	})
}
