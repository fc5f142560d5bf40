package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/cloo-solutions/converso/internal/api"
	"github.com/cloo-solutions/converso/internal/service"
)

type InboundPipeline interface {
	ProcessInbound(ctx context.Context, input service.ProcessInput) (*service.ProcessOutput, error)
}

// WebhookHandler implements the Meta Graph webhook surface: the GET
// verification handshake and the POST delivery of inbound messages.
type WebhookHandler struct {
	pipeline    InboundPipeline
	verifyToken string
	generate    bool
}

func NewWebhookHandler(pipeline InboundPipeline, verifyToken string, generate bool) *WebhookHandler {
	return &WebhookHandler{
		pipeline:    pipeline,
		verifyToken: verifyToken,
		generate:    generate,
	}
}

// Verify answers the subscription handshake by echoing hub.challenge
// when the verify token matches.
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode != "subscribe" || token == "" || token != h.verifyToken {
		api.Error(w, http.StatusForbidden, "verification failed")
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(challenge))
}

type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []webhookMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type webhookMessage struct {
	From string `json:"from"`
	Type string `json:"type"`
	Text struct {
		Body string `json:"body"`
	} `json:"text"`
	Interactive struct {
		ButtonReply struct {
			Title string `json:"title"`
		} `json:"button_reply"`
		ListReply struct {
			Title string `json:"title"`
		} `json:"list_reply"`
	} `json:"interactive"`
}

// messageText extracts the user-visible text from a message. Button and
// list replies carry their text in the selected option's title.
func (m webhookMessage) messageText() string {
	switch m.Type {
	case "text":
		return m.Text.Body
	case "interactive":
		if m.Interactive.ButtonReply.Title != "" {
			return m.Interactive.ButtonReply.Title
		}
		return m.Interactive.ListReply.Title
	default:
		return ""
	}
}

// Receive processes inbound message deliveries. The handler always
// acknowledges with 200 so the provider does not redeliver; per-message
// failures are logged, not surfaced.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Success(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	processed := 0
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				text := msg.messageText()
				if text == "" || msg.From == "" {
					continue
				}

				_, err := h.pipeline.ProcessInbound(r.Context(), service.ProcessInput{
					Phone:    msg.From,
					Text:     text,
					Generate: h.generate,
				})
				if err != nil {
					log.Printf("webhook: processing message from %s failed: %v", msg.From, err)
					continue
				}
				processed++
			}
		}
	}

	api.Success(w, http.StatusOK, map[string]any{"status": "ok", "processed": processed})
}
