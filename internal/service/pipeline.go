package service

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/cloo-solutions/converso/internal/domain"
	"github.com/cloo-solutions/converso/internal/pagination"
	"github.com/cloo-solutions/converso/internal/telemetry"
)

// MessageRepositoryInterface defines the repository interface for message audit records
type MessageRepositoryInterface interface {
	Create(ctx context.Context, m *domain.Message) error
	UpdateDelivery(ctx context.Context, id string, status domain.DeliveryStatus, meta map[string]any) error
	GetByID(ctx context.Context, id string) (*domain.Message, error)
	ListWithCursor(ctx context.Context, correspondentID string, cursor *pagination.Cursor, limit int) (*MessagePageResult, error)
	Stats(ctx context.Context, since time.Time) (*MessageStats, error)
}

type MessagePageResult struct {
	Items      []*domain.Message
	NextCursor string
	HasMore    bool
}

// MessageStats aggregates message volume by intent since an instant.
type MessageStats struct {
	Since    time.Time
	Total    int64
	ByIntent map[string]int64
}

// PipelineService sequences one inbound turn: resolve the correspondent,
// classify, retrieve grounding chunks, generate an answer, enrich the
// profile, deliver, and persist an auditable message record. Degraded
// stages leave their slot in the record null or empty, only a missing
// precondition or an unreachable store fails the turn outright.
type PipelineService struct {
	profiles    *ProfileService
	intents     *IntentService
	knowledge   *KnowledgeService
	answers     *AnswerService
	delivery    *DeliveryService
	messageRepo MessageRepositoryInterface
	embedder    EmbeddingClient
	uuidGen     UUIDGenerator
	retrievalK  int
}

func NewPipelineService(
	profiles *ProfileService,
	intents *IntentService,
	knowledge *KnowledgeService,
	answers *AnswerService,
	delivery *DeliveryService,
	messageRepo MessageRepositoryInterface,
	embedder EmbeddingClient,
	retrievalK int,
) *PipelineService {
	if retrievalK <= 0 {
		retrievalK = 5
	}
	return &PipelineService{
		profiles:    profiles,
		intents:     intents,
		knowledge:   knowledge,
		answers:     answers,
		delivery:    delivery,
		messageRepo: messageRepo,
		embedder:    embedder,
		uuidGen:     &DefaultUUIDGenerator{},
		retrievalK:  retrievalK,
	}
}

// ProcessInput is one inbound turn.
type ProcessInput struct {
	Phone    string
	Text     string
	Generate bool
}

// ProcessOutput reports what the pipeline produced for the turn.
type ProcessOutput struct {
	MessageID     string
	Intent        string
	IntentScore   int
	Retrieved     []*RetrievedChunk
	Answer        *string
	Correspondent *domain.Correspondent
}

// ProcessInbound runs the full pipeline for one inbound message.
func (s *PipelineService) ProcessInbound(ctx context.Context, input ProcessInput) (*ProcessOutput, error) {
	ctx, span := telemetry.StartSpan(ctx, "PipelineService.ProcessInbound", telemetry.SpanAttributes{
		Operation: "process_inbound",
	})
	defer span.End()

	text := strings.TrimSpace(input.Text)
	if text == "" {
		return nil, domain.ErrMissingInboundText
	}
	if domain.NormalizePhone(input.Phone) == "" {
		return nil, domain.ErrMissingPhone
	}

	correspondent, err := s.profiles.Resolve(ctx, input.Phone)
	if err != nil {
		return nil, err
	}

	// One embedding of the inbound text serves both classification and
	// retrieval. If the embedding service is down the turn degrades to a
	// fallback classification with empty grounding.
	var classification *domain.Classification
	var retrieved []*RetrievedChunk

	vec, embedErr := s.embedder.GenerateEmbedding(ctx, text)
	if embedErr != nil {
		log.Printf("pipeline: embedding unavailable, degrading turn: %v", embedErr)
		classification = s.intents.ClassifyVector(nil)
	} else {
		classification = s.intents.ClassifyVector(vec)

		retrieved, err = s.knowledge.SearchByVector(ctx, vec, s.retrievalK, "")
		if err != nil {
			log.Printf("pipeline: retrieval failed, continuing without grounding: %v", err)
			telemetry.CaptureError(ctx, err)
			retrieved = nil
		}
	}

	var answer *string
	if input.Generate {
		generated, err := s.answers.Generate(ctx, GenerateInput{
			Question:      text,
			Retrieved:     retrieved,
			Correspondent: correspondent,
		})
		if err != nil {
			log.Printf("pipeline: generation failed, answer stays empty: %v", err)
		} else {
			answer = &generated
		}
	}

	answerText := ""
	if answer != nil {
		answerText = *answer
	}
	if _, err := s.profiles.EnrichProfile(ctx, correspondent, text, answerText); err != nil {
		log.Printf("pipeline: profile enrichment failed for %s: %v", correspondent.ID, err)
		telemetry.CaptureError(ctx, err)
	}

	message := &domain.Message{
		ID:              s.uuidGen.NewString(),
		CorrespondentID: correspondent.ID,
		InboundText:     text,
		AnswerText:      answer,
		IntentName:      classification.IntentName,
		IntentScore:     classification.ScorePct(),
		RetrievalTrace:  retrievalTrace(retrieved),
		DeliveryStatus:  domain.DeliveryStatusPending,
		DeliveryMeta:    map[string]any{},
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.messageRepo.Create(ctx, message); err != nil {
		return nil, err
	}

	if answer != nil && s.delivery != nil {
		result := s.delivery.Send(ctx, correspondent.Phone, *answer)

		status := domain.DeliveryStatusSent
		meta := map[string]any{"attempts": result.Attempts}
		if !result.OK {
			status = domain.DeliveryStatusFailed
			meta["error"] = result.Error
		}
		if result.ProviderResponse != nil {
			meta["provider_response"] = result.ProviderResponse
		}

		if err := s.messageRepo.UpdateDelivery(ctx, message.ID, status, meta); err != nil {
			log.Printf("pipeline: recording delivery outcome failed for %s: %v", message.ID, err)
			telemetry.CaptureError(ctx, err)
		}
	}

	return &ProcessOutput{
		MessageID:     message.ID,
		Intent:        classification.IntentName,
		IntentScore:   classification.ScorePct(),
		Retrieved:     retrieved,
		Answer:        answer,
		Correspondent: correspondent,
	}, nil
}

type ListMessagesInput struct {
	CorrespondentID string
	Cursor          string
	Limit           int
}

type ListMessagesOutput struct {
	Items   []*domain.Message
	Cursor  string
	HasMore bool
}

func (s *PipelineService) ListMessages(ctx context.Context, input ListMessagesInput) (*ListMessagesOutput, error) {
	cursor, _ := pagination.DecodeCursor(input.Cursor)
	limit := pagination.ClampLimit(input.Limit)

	result, err := s.messageRepo.ListWithCursor(ctx, input.CorrespondentID, cursor, limit)
	if err != nil {
		return nil, err
	}

	return &ListMessagesOutput{
		Items:   result.Items,
		Cursor:  result.NextCursor,
		HasMore: result.HasMore,
	}, nil
}

func (s *PipelineService) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	return s.messageRepo.GetByID(ctx, id)
}

// Stats reports message volume by intent over the trailing window.
func (s *PipelineService) Stats(ctx context.Context, window time.Duration) (*MessageStats, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return s.messageRepo.Stats(ctx, time.Now().UTC().Add(-window))
}

func retrievalTrace(retrieved []*RetrievedChunk) []domain.RetrievalHit {
	trace := make([]domain.RetrievalHit, 0, len(retrieved))
	for _, hit := range retrieved {
		trace = append(trace, domain.RetrievalHit{
			ChunkID:  hit.Chunk.ID,
			Distance: hit.Distance,
		})
	}
	return trace
}
